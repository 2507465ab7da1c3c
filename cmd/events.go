// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/indexrunner/config"
	"github.com/cardinalhq/indexrunner/internal/bootstrap"
	"github.com/cardinalhq/indexrunner/internal/dbopen"
	"github.com/cardinalhq/indexrunner/internal/events"
	"github.com/cardinalhq/indexrunner/internal/statusstore"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

var eventsOutput string

// accessGroupLister is implemented by storage that can list one access
// group's events.
type accessGroupLister interface {
	GetByAccessGroup(ctx context.Context, accessGroupID int64, limit int) ([]events.StoredStatusEvent, error)
}

func init() {
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect and edit stored status events",
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			switch eventsOutput {
			case outputTable, outputJSON, outputYAML:
				return nil
			default:
				return fmt.Errorf("unknown output format %q (table, json, yaml)", eventsOutput)
			}
		},
	}
	eventsCmd.PersistentFlags().StringVarP(&eventsOutput, "output", "o", outputTable, "Output format: table, json or yaml")

	eventsCmd.AddCommand(
		eventsStoreCmd(),
		eventsGetCmd(),
		eventsListCmd(),
		eventsSummaryCmd(),
		eventsSetStateCmd(),
	)
	rootCmd.AddCommand(eventsCmd)
}

func withEventStorage(c *cobra.Command, fn func(ctx context.Context, storage *statusstore.PostgresStorage) error) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Minute)
	defer cancel()

	storage, closeStorage, err := openStorage(ctx, dbopen.WarnOnMigrationMismatch())
	if err != nil {
		return err
	}
	defer closeStorage()
	return fn(ctx, storage)
}

func eventsStoreCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Store the events in a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return withEventStorage(c, func(ctx context.Context, storage *statusstore.PostgresStorage) error {
				stored, err := bootstrap.ImportFromYAML(ctx, file, storage)
				if err != nil {
					return err
				}
				return printEvents(c.OutOrStdout(), eventsOutput, stored)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file of events, or env:VAR to read it from an environment variable")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func eventsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show one event",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withEventStorage(c, func(ctx context.Context, storage *statusstore.PostgresStorage) error {
				return getEvent(ctx, storage, args[0], c.OutOrStdout(), eventsOutput)
			})
		},
	}
}

func getEvent(ctx context.Context, storage statusstore.StatusEventStorage, rawID string, w io.Writer, format string) error {
	id, err := events.NewStatusEventID(rawID)
	if err != nil {
		return err
	}
	sse, err := storage.Get(ctx, id)
	if err != nil {
		return err
	}
	if sse == nil {
		return fmt.Errorf("no event with id %s", id)
	}
	return printEvents(w, format, []events.StoredStatusEvent{*sse})
}

func eventsListCmd() *cobra.Command {
	var (
		state       string
		accessGroup int64
		limit       int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events in a state or access group, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return withEventStorage(c, func(ctx context.Context, storage *statusstore.PostgresStorage) error {
				return listEvents(ctx, storage, state, accessGroup, limit, c.OutOrStdout(), eventsOutput)
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", string(events.StateUnprocessed), "Processing state to list")
	cmd.Flags().Int64Var(&accessGroup, "access-group", 0, "List this access group's events in every state instead")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of events to list")
	return cmd
}

func listEvents(ctx context.Context, storage statusstore.StatusEventStorage, state string, accessGroup int64, limit int, w io.Writer, format string) error {
	var (
		evs []events.StoredStatusEvent
		err error
	)
	if accessGroup != 0 {
		lister, ok := storage.(accessGroupLister)
		if !ok {
			return fmt.Errorf("storage cannot list by access group")
		}
		evs, err = lister.GetByAccessGroup(ctx, accessGroup, limit)
	} else {
		st, perr := events.ParseProcessingState(state)
		if perr != nil {
			return perr
		}
		evs, err = storage.GetByState(ctx, st, limit)
	}
	if err != nil {
		return err
	}
	return printEvents(w, format, evs)
}

func eventsSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Count events per processing state",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return withEventStorage(c, func(ctx context.Context, storage *statusstore.PostgresStorage) error {
				return summarize(ctx, storage, c.OutOrStdout(), eventsOutput)
			})
		},
	}
}

func summarize(ctx context.Context, storage statusstore.StatusEventStorage, w io.Writer, format string) error {
	counts, err := storage.CountByState(ctx)
	if err != nil {
		return err
	}

	all := make(map[string]int64, len(events.AllStates()))
	for _, st := range events.AllStates() {
		all[st.String()] = counts[st]
	}

	switch format {
	case outputJSON, outputYAML:
		return encode(w, format, all)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "STATE\tCOUNT"); err != nil {
		return err
	}
	for _, st := range events.AllStates() {
		if _, err := fmt.Fprintf(tw, "%s\t%d\n", st, all[st.String()]); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func eventsSetStateCmd() *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "set-state ID STATE",
		Short: "Move an event to another processing state",
		Long: `Move an event to another processing state. With --from the change only
happens if the event is currently in that state. Setting an in-flight event
back to UNPROC makes the coordinator hand it out again.`,
		Args: cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			return withEventStorage(c, func(ctx context.Context, storage *statusstore.PostgresStorage) error {
				return setState(ctx, storage, args[0], args[1], from, config.ServiceTypeCLI, c.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Only change the event if it is in this state")
	return cmd
}

func setState(ctx context.Context, storage statusstore.StatusEventStorage, rawID, rawState, rawFrom, updater string, w io.Writer) error {
	id, err := events.NewStatusEventID(rawID)
	if err != nil {
		return err
	}
	newState, err := events.ParseProcessingState(rawState)
	if err != nil {
		return err
	}
	var from *events.ProcessingState
	if rawFrom != "" {
		st, err := events.ParseProcessingState(rawFrom)
		if err != nil {
			return err
		}
		from = &st
	}

	ok, err := storage.SetProcessingState(ctx, id, from, newState, updater)
	if err != nil {
		return err
	}
	if !ok {
		if from != nil {
			return fmt.Errorf("event %s not found or not in state %s", id, *from)
		}
		return fmt.Errorf("no event with id %s", id)
	}
	_, err = fmt.Fprintf(w, "event %s is now %s\n", id, newState)
	return err
}

func printEvents(w io.Writer, format string, evs []events.StoredStatusEvent) error {
	switch format {
	case outputJSON, outputYAML:
		records := make([]bootstrap.Record, 0, len(evs))
		for _, e := range evs {
			records = append(records, bootstrap.NewRecord(e))
		}
		return encode(w, format, records)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "ID\tSTATE\tTYPE\tTIMESTAMP\tACCESS_GROUP\tOBJECT\tWORKER_CODES\tUPDATER"); err != nil {
		return err
	}
	for _, e := range evs {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID,
			e.State,
			e.Event.Type,
			e.Event.Timestamp.Format(time.RFC3339Nano),
			orDash(e.Event.AccessGroupID, func(v int64) string { return strconv.FormatInt(v, 10) }),
			orDash(e.Event.ObjectID, func(v string) string { return v }),
			strings.Join(e.WorkerCodes, ","),
			orDash(e.UpdatedBy, func(v string) string { return v }),
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func orDash[T any](v *T, format func(T) string) string {
	if v == nil {
		return "-"
	}
	return format(*v)
}

func encode(w io.Writer, format string, v any) error {
	if format == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
