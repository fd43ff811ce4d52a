package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpvargas/gastotrack/internal/cli"
	"github.com/jpvargas/gastotrack/internal/model"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage spending categories",
	}

	cmd.AddCommand(categoriesListCmd())
	cmd.AddCommand(categoriesAddCmd())

	return cmd
}

func categoriesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			categories, err := store.ListActiveCategories(ctx)
			if err != nil {
				return err
			}

			fmt.Println(cli.FormatTitle("Categories"))
			for i := range categories {
				c := &categories[i]
				line := fmt.Sprintf("%-14s %s", c.Code, c.Name)
				if c.Description != "" {
					line += cli.SubtleStyle.Render("  " + c.Description)
				}
				fmt.Println(cli.TableCellStyle.Render(line))

				subs, subErr := store.ListSubcategories(ctx, c.ID)
				if subErr != nil {
					return subErr
				}
				for j := range subs {
					fmt.Println(cli.SubtleStyle.Render(fmt.Sprintf("    - %s", subs[j].Name)))
				}
			}
			return nil
		},
	}
}

func categoriesAddCmd() *cobra.Command {
	var (
		code        string
		name        string
		description string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a spending category",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			category := &model.Category{
				Code:        code,
				Name:        name,
				Description: description,
				IsActive:    true,
			}
			if err := store.CreateCategory(ctx, category); err != nil {
				return err
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Category %s (%d) created", category.Code, category.ID)))
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "stable category code (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name (required)")
	cmd.Flags().StringVar(&description, "description", "", "what spending belongs here, used in LLM prompts")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}
