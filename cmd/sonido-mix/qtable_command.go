package main

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-mix/policy"
	"github.com/RyanBlaney/sonido-mix/store"
)

func newQTableCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var modeFlag string
	var stateFlag string

	cmd := &cobra.Command{
		Use:   "qtable",
		Short: "Show the highest valued states of the saved Q-table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			st, err := store.Open(cfg.Persistence.ModelDir)
			if err != nil {
				return fmt.Errorf("open model store: %w", err)
			}
			defer st.Close()

			mode, err := policy.ParseMode(modeFlag)
			if err != nil {
				return err
			}

			model, found, err := st.LoadPolicy(cmd.Context(), mode)
			if err != nil {
				return fmt.Errorf("load q-table: %w", err)
			}
			out := cmd.OutOrStdout()
			if !found {
				fmt.Fprintf(out, "No saved %s Q-table in %s\n", mode, st.Dir())
				return nil
			}

			meta, _, err := st.Meta(cmd.Context(), mode)
			if err != nil {
				return fmt.Errorf("load q-table metadata: %w", err)
			}
			fmt.Fprintf(out, "Snapshot %s saved %s: %d states, exploration %.4f\n",
				meta.SnapshotID, meta.SavedAt.Format(time.RFC3339), meta.States, meta.ExplorationRate)
			if stateFlag != "" {
				return printState(out, model.Table, stateFlag)
			}
			printQTable(out, model.Table, limit)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of states to show (0 shows all)")
	cmd.Flags().StringVar(&stateFlag, "state", "", "Show a single state key (energy_loudness_crossfader_beat, e.g. 5_6_5_1)")
	cmd.Flags().StringVarP(&modeFlag, "mode", "m", string(policy.ModeReinforcement), "Policy mode whose table to show")
	return cmd
}

func printQTable(out io.Writer, table map[policy.StateKey]policy.Row, limit int) {
	type entry struct {
		key policy.StateKey
		row policy.Row
	}
	entries := make([]entry, 0, len(table))
	for k, r := range table {
		entries = append(entries, entry{key: k, row: r})
	}
	slices.SortFunc(entries, func(a, b entry) int {
		if c := cmp.Compare(b.row.Max(), a.row.Max()); c != 0 {
			return c
		}
		return cmp.Compare(a.key.String(), b.key.String())
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	headers := []string{"State"}
	aligns := []columnAlignment{alignLeft}
	for a := range policy.Action(policy.NumActions) {
		headers = append(headers, a.String())
		aligns = append(aligns, alignRight)
	}
	headers = append(headers, "Best")
	aligns = append(aligns, alignLeft)

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		row := []string{e.key.String()}
		for _, q := range e.row {
			row = append(row, fmt.Sprintf("%.4f", q))
		}
		row = append(row, e.row.Best().String())
		rows = append(rows, row)
	}

	fmt.Fprintln(out, renderTable(headers, rows, aligns))
}

func printState(out io.Writer, rows map[policy.StateKey]policy.Row, raw string) error {
	key, err := policy.ParseStateKey(raw)
	if err != nil {
		return err
	}

	table := policy.NewQTable(0)
	table.Load(rows)
	row, ok := table.Lookup(key)
	if !ok {
		fmt.Fprintf(out, "State %s has not been visited\n", key)
		return nil
	}

	values := make([][]string, 0, policy.NumActions)
	for a := range policy.Action(policy.NumActions) {
		values = append(values, []string{a.String(), fmt.Sprintf("%.4f", row[a])})
	}
	fmt.Fprintf(out, "State %s, best action %s\n", key, row.Best())
	fmt.Fprintln(out, renderTable([]string{"Action", "Q"}, values, []columnAlignment{alignLeft, alignRight}))
	return nil
}
