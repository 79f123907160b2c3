package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pennypincher/pennypincher/internal/calc"
	"github.com/pennypincher/pennypincher/internal/entry"
	"github.com/pennypincher/pennypincher/internal/model"
)

func entryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "entry",
		Short: "Interactive calculator-style transaction entry",
		Long: `Type amounts like on a pocket calculator. Keys:
  0-9 .     digits
  + - * /   chained operations (left to right, no precedence)
  =         evaluate
  b         backspace
  c         clear entry
  a/t/p ID  pick account/category/payee explicitly
  s         save the current amount as a transaction
  q         quit`,
		RunE: runEntry,
	}
}

func runEntry(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	queue := openQueue()
	defer func() { _ = queue.Close() }()

	manager := newManager(store, queue)
	if err := manager.Start(ctx); err != nil {
		return err
	}
	defer manager.Close()

	c := entry.New(store, queue, coordinatorConfig())
	defer c.Close()

	c.OnCommit(func(txn model.Transaction) {
		fmt.Printf("✓ recorded %.2f (transaction %s)\n", txn.Value, txn.ID)
	})
	c.OnError(func(err error) {
		fmt.Printf("! %v\n", err)
	})

	if err := c.LoadEntities(ctx); err != nil {
		return err
	}

	fmt.Println("penny quick entry — 'q' to quit, 's' to save")
	printState(c, manager.Status(ctx).QueueSize)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			printState(c, manager.Status(ctx).QueueSize)
			continue
		}

		if quit := handleLine(ctx, c, line); quit {
			break
		}
		printState(c, manager.Status(ctx).QueueSize)

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
	return scanner.Err()
}

// handleLine interprets one line of input and reports whether to quit.
func handleLine(ctx context.Context, c *entry.Coordinator, line string) bool {
	switch {
	case line == "q":
		return true
	case line == "s":
		if _, err := c.Commit(ctx); err != nil {
			fmt.Printf("! commit failed: %v\n", err)
		}
		return false
	case line == "c":
		c.ClearEntry()
		return false
	case line == "b":
		c.Backspace()
		return false
	case strings.HasPrefix(line, "a "):
		c.SetAccount(strings.TrimSpace(strings.TrimPrefix(line, "a ")))
		return false
	case strings.HasPrefix(line, "t "):
		c.SetCategory(strings.TrimSpace(strings.TrimPrefix(line, "t ")))
		return false
	case strings.HasPrefix(line, "p "):
		c.SetPayee(strings.TrimSpace(strings.TrimPrefix(line, "p ")))
		return false
	}

	for _, key := range line {
		var err error
		switch key {
		case '+', '-', '*', '/':
			err = c.Operator(calc.Op(key))
		case '=':
			_, err = c.Equals()
		case ' ':
		default:
			err = c.Digit(key)
		}
		if err != nil {
			fmt.Printf("! %v\n", err)
		}
	}
	return false
}

func printState(c *entry.Coordinator, queued int) {
	snap := c.Machine().Snapshot()
	sel := c.Selection()

	display := snap.Display
	if snap.HasPending {
		right := snap.Display
		if snap.Waiting {
			right = ""
		}
		display = fmt.Sprintf("%s %s %s", snap.Previous, snap.Operation, right)
	}

	fmt.Printf("[%s] = %s  account=%s(%s) category=%s(%s) payee=%s(%s)",
		display,
		c.EffectiveAmount(),
		orDash(sel.AccountID), sel.AccountState,
		orDash(sel.CategoryID), sel.CategoryState,
		orDash(sel.PayeeID), sel.PayeeState,
	)
	if queued > 0 {
		fmt.Printf("  [%d queued]", queued)
	}
	fmt.Println()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
