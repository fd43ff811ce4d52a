package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jpvargas/gastotrack/internal/cli"
	"github.com/jpvargas/gastotrack/internal/model"
	"github.com/jpvargas/gastotrack/internal/rules"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage categorization rules",
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesAddCmd())
	cmd.AddCommand(rulesPromoteCmd())
	cmd.AddCommand(suggestionsCmd())

	return cmd
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active rules in evaluation order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			active, err := store.ListActiveRules(ctx)
			if err != nil {
				return err
			}
			if len(active) == 0 {
				fmt.Println(cli.SubtleStyle.Render("No active rules."))
				return nil
			}

			fmt.Println(cli.FormatTitle("Active rules"))
			fmt.Println(cli.TableHeaderStyle.Render(fmt.Sprintf("%-5s %-4s %-12s %-12s %-25s %-6s %s",
				"ID", "PRI", "FIELD", "TYPE", "VALUE", "CARD", "CATEGORY")))
			for i := range active {
				rule := &active[i]
				category, catErr := store.GetCategory(ctx, rule.CategoryID)
				categoryName := strconv.FormatInt(rule.CategoryID, 10)
				if catErr == nil {
					categoryName = category.Name
				}
				fmt.Println(cli.TableCellStyle.Render(fmt.Sprintf("%-5d %-4d %-12s %-12s %-25s %-6s %s",
					rule.ID, rule.Priority, rule.MatchField, rule.MatchType, rule.MatchValue, rule.CardLast4, categoryName)))
			}
			return nil
		},
	}
}

func rulesAddCmd() *cobra.Command {
	var (
		categoryCode string
		field        string
		matchType    string
		value        string
		card         string
		priority     int
		notes        string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a categorization rule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			category, err := store.GetCategoryByCode(ctx, categoryCode)
			if err != nil {
				return fmt.Errorf("unknown category %q: %w", categoryCode, err)
			}

			rule := &model.CategoryRule{
				CategoryID: category.ID,
				MatchField: model.MatchField(field),
				MatchType:  model.MatchType(matchType),
				MatchValue: value,
				CardLast4:  card,
				Priority:   priority,
				Notes:      notes,
				Origin:     model.OriginManual,
				IsActive:   true,
			}
			if err := store.CreateRule(ctx, rule); err != nil {
				return err
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Rule %d created for %s", rule.ID, category.Name)))
			return nil
		},
	}

	cmd.Flags().StringVar(&categoryCode, "category", "", "category code the rule assigns (required)")
	cmd.Flags().StringVar(&field, "field", "merchant", "field to match (merchant, description, card_last4, any)")
	cmd.Flags().StringVar(&matchType, "type", "contains", "match type (contains, starts_with, ends_with, exact, regex, always)")
	cmd.Flags().StringVar(&value, "value", "", "value to match against")
	cmd.Flags().StringVar(&card, "card", "", "restrict the rule to this card's last four digits")
	cmd.Flags().IntVar(&priority, "priority", 100, "evaluation priority, lower runs first")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}

func rulesPromoteCmd() *cobra.Command {
	var includeCard bool

	cmd := &cobra.Command{
		Use:   "promote <transaction-id>",
		Short: "Promote a categorized transaction into a merchant rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			txnID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid transaction id %q", args[0])
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			txn, err := store.GetTransaction(ctx, txnID)
			if err != nil {
				return err
			}

			result, err := rules.PromoteTransaction(ctx, store, txn, includeCard, model.OriginPromoted)
			if err != nil {
				return err
			}

			if result.Created {
				fmt.Println(cli.FormatSuccess(fmt.Sprintf("Rule %d created for merchant %q", result.Rule.ID, result.Rule.MatchValue)))
			} else {
				fmt.Println(cli.SubtleStyle.Render(fmt.Sprintf("Rule %d already covers merchant %q", result.Rule.ID, result.Rule.MatchValue)))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&includeCard, "card", false, "restrict the rule to the transaction's card")

	return cmd
}

func suggestionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggestions",
		Short: "Review rule suggestions derived from manual corrections",
	}

	cmd.AddCommand(suggestionsListCmd())
	cmd.AddCommand(suggestionsAcceptCmd())
	cmd.AddCommand(suggestionsRejectCmd())

	return cmd
}

func suggestionsListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rule suggestions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			pending, err := store.ListSuggestions(ctx, model.SuggestionStatus(status))
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Println(cli.SubtleStyle.Render("No suggestions."))
				return nil
			}

			fmt.Println(cli.FormatTitle(fmt.Sprintf("%s Rule suggestions", cli.ReviewIcon)))
			for i := range pending {
				s := &pending[i]
				line := fmt.Sprintf("#%d %s -> category %d", s.ID, s.MerchantName, s.CategoryID)
				if s.CardLast4 != "" {
					line += fmt.Sprintf(" (card %s)", s.CardLast4)
				}
				fmt.Println(cli.TableCellStyle.Render(line))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", string(model.SuggestionPending), "status to list (pending, accepted, rejected)")

	return cmd
}

func suggestionsAcceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <suggestion-id>",
		Short: "Accept a suggestion, creating its rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid suggestion id %q", args[0])
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			suggestion, err := store.GetSuggestion(ctx, id)
			if err != nil {
				return err
			}

			rule, err := rules.AcceptSuggestion(ctx, store, store, suggestion)
			if err != nil {
				return err
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Suggestion %d accepted, rule %d created", id, rule.ID)))
			return nil
		},
	}
}

func suggestionsRejectCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "reject <suggestion-id>",
		Short: "Reject a suggestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid suggestion id %q", args[0])
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			suggestion, err := store.GetSuggestion(ctx, id)
			if err != nil {
				return err
			}

			if err := rules.RejectSuggestion(ctx, store, suggestion, reason); err != nil {
				return err
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Suggestion %d rejected", id)))
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "why the suggestion was rejected")

	return cmd
}
