package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pennypincher/pennypincher/internal/model"
	"github.com/pennypincher/pennypincher/internal/storage"
)

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage accounts",
	}
	cmd.AddCommand(entityListCmd("accounts", func(ctx context.Context, s *storage.SQLiteStorage) ([]entityLine, error) {
		accounts, err := s.ListAccounts(ctx)
		if err != nil {
			return nil, err
		}
		lines := make([]entityLine, len(accounts))
		for i, a := range accounts {
			lines[i] = entityLine{ID: a.ID, Name: a.Name, IsDefault: a.IsDefault}
		}
		return lines, nil
	}))
	cmd.AddCommand(entityAddCmd("account", func(ctx context.Context, s *storage.SQLiteStorage, name string, isDefault bool) (string, error) {
		a, err := s.CreateAccount(ctx, name, isDefault)
		if err != nil {
			return "", err
		}
		return a.ID, nil
	}))
	return cmd
}

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage categories",
	}
	cmd.AddCommand(entityListCmd("categories", func(ctx context.Context, s *storage.SQLiteStorage) ([]entityLine, error) {
		categories, err := s.ListCategories(ctx)
		if err != nil {
			return nil, err
		}
		lines := make([]entityLine, len(categories))
		for i, c := range categories {
			lines[i] = entityLine{ID: c.ID, Name: c.Name, IsDefault: c.IsDefault}
		}
		return lines, nil
	}))
	cmd.AddCommand(entityAddCmd("category", func(ctx context.Context, s *storage.SQLiteStorage, name string, isDefault bool) (string, error) {
		c, err := s.CreateCategory(ctx, name, isDefault)
		if err != nil {
			return "", err
		}
		return c.ID, nil
	}))
	return cmd
}

func payeesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payees",
		Short: "Manage payees",
	}
	cmd.AddCommand(entityListCmd("payees", func(ctx context.Context, s *storage.SQLiteStorage) ([]entityLine, error) {
		payees, err := s.ListPayees(ctx)
		if err != nil {
			return nil, err
		}
		lines := make([]entityLine, len(payees))
		for i, p := range payees {
			lines[i] = entityLine{ID: p.ID, Name: p.Name, IsDefault: p.IsDefault}
		}
		return lines, nil
	}))
	cmd.AddCommand(entityAddCmd("payee", func(ctx context.Context, s *storage.SQLiteStorage, name string, isDefault bool) (string, error) {
		p, err := s.CreatePayee(ctx, name, isDefault)
		if err != nil {
			return "", err
		}
		return p.ID, nil
	}))
	return cmd
}

type entityLine struct {
	ID        string
	Name      string
	IsDefault bool
}

func entityListCmd(plural string, list func(context.Context, *storage.SQLiteStorage) ([]entityLine, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("List %s", plural),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			lines, err := list(ctx, store)
			if err != nil {
				return err
			}
			if len(lines) == 0 {
				fmt.Printf("no %s yet\n", plural)
				return nil
			}
			for _, line := range lines {
				marker := " "
				if line.IsDefault {
					marker = "*"
				}
				fmt.Printf("%s %s  %s\n", marker, line.ID, line.Name)
			}
			return nil
		},
	}
}

func entityAddCmd(singular string, create func(context.Context, *storage.SQLiteStorage, string, bool) (string, error)) *cobra.Command {
	var isDefault bool
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: fmt.Sprintf("Add a %s", singular),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			id, err := create(ctx, store, args[0], isDefault)
			if err != nil {
				return err
			}
			fmt.Printf("created %s %s (%s)\n", singular, args[0], id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&isDefault, "default", false, fmt.Sprintf("make this the default %s", singular))
	return cmd
}

func transactionsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "List recent transactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			transactions, err := store.ListTransactions(ctx, limit)
			if err != nil {
				return err
			}
			if len(transactions) == 0 {
				fmt.Println("no transactions yet")
				return nil
			}
			for _, txn := range transactions {
				printTransaction(txn)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of transactions to show")
	return cmd
}

func printTransaction(txn model.Transaction) {
	fmt.Printf("%s  %10.2f  account=%s", txn.Date.Local().Format("2006-01-02"), txn.Value, txn.AccountID)
	if txn.CategoryID != "" {
		fmt.Printf("  category=%s", txn.CategoryID)
	}
	if txn.PayeeID != "" {
		fmt.Printf("  payee=%s", txn.PayeeID)
	}
	fmt.Println()
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Populate an empty ledger with starter entities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			return store.SeedDefaults(ctx)
		},
	}
}
