package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-policy/internal/archive"
)

func init() {
	record := &cobra.Command{
		Use:   "record",
		Short: "Record one interaction",
		Args:  cobra.NoArgs,
		RunE:  runRecord,
	}
	record.Flags().String("input", "", "User input")
	record.Flags().String("response", "", "Model response text")
	record.Flags().String("feedback", "", "Feedback tag (resonance, rejection, ignore) or free text")
	record.Flags().Bool("refusal", false, "Mark the response as a refusal")
	RootCmd.AddCommand(record)

	RootCmd.AddCommand(&cobra.Command{
		Use:   "feedback <interaction-id> <tag>",
		Short: "Set the feedback tag of a recorded interaction",
		Args:  cobra.ExactArgs(2),
		RunE:  runFeedback,
	})

	RootCmd.AddCommand(&cobra.Command{
		Use:   "import [file]",
		Short: "Import interactions from JSON Lines",
		Long:  "Import interactions from JSON Lines (file or stdin). Each line holds user_input, response_text and optionally timestamp, feedback, refusal.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runImport,
	})
}

// #region record

func runRecord(cmd *cobra.Command, args []string) error {
	input, _ := cmd.Flags().GetString("input")
	response, _ := cmd.Flags().GetString("response")
	feedback, _ := cmd.Flags().GetString("feedback")
	refusal, _ := cmd.Flags().GetBool("refusal")

	s, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	id, err := s.RecordInteraction(cmd.Context(), archive.NewInteraction{
		UserInput:    input,
		ResponseText: response,
		Feedback:     feedback,
		Refusal:      refusal,
	})
	if err != nil {
		return fmt.Errorf("record: %w", err)
	}
	printJSON(map[string]string{"id": id})
	return nil
}

func runFeedback(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	if err := s.UpdateFeedback(cmd.Context(), args[0], args[1]); err != nil {
		return fmt.Errorf("feedback: %w", err)
	}
	printJSON(map[string]any{"ok": true, "id": args[0], "feedback": args[1]})
	return nil
}

// #endregion record

// #region import

// importLine is one JSON Lines record.
type importLine struct {
	Timestamp    *time.Time `json:"timestamp"`
	UserInput    string     `json:"user_input"`
	ResponseText string     `json:"response_text"`
	Feedback     string     `json:"feedback"`
	Refusal      bool       `json:"refusal"`
}

// Recorder persists one interaction.
type Recorder interface {
	RecordInteraction(ctx context.Context, in archive.NewInteraction) (string, error)
}

func runImport(cmd *cobra.Command, args []string) error {
	var r io.Reader = os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open file: %w", err)
		}
		defer f.Close()
		r = f
	}

	s, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	n, err := ImportJSONL(cmd.Context(), r, s)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	fmt.Printf(`{"ok":true,"imported":%d}`+"\n", n)
	return nil
}

// ImportJSONL records every non-blank line of r. It stops at the first
// malformed line and returns how many were recorded before it.
func ImportJSONL(ctx context.Context, r io.Reader, rec Recorder) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	n, lineNo := 0, 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		var in importLine
		if err := json.Unmarshal([]byte(line), &in); err != nil {
			return n, fmt.Errorf("line %d: %w", lineNo, err)
		}

		ni := archive.NewInteraction{
			UserInput:    in.UserInput,
			ResponseText: in.ResponseText,
			Feedback:     in.Feedback,
			Refusal:      in.Refusal,
		}
		if in.Timestamp != nil {
			ni.Timestamp = *in.Timestamp
		}
		if _, err := rec.RecordInteraction(ctx, ni); err != nil {
			return n, fmt.Errorf("line %d: %w", lineNo, err)
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return n, err
	}
	return n, nil
}

// #endregion import
