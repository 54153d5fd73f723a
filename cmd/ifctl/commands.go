package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newIngestCmd(opts *options) *cobra.Command {
	var documentID, name, mimeType string

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a document",
		Long: `Ingest a document so it can be queried.

The path is resolved by the server, so it must be readable there. Relative
local paths are made absolute first. s3://bucket/key references are passed
through unchanged. Without --document a random document id is generated and
printed.

Examples:
  # Ingest a PDF
  ifctl ingest --user u1 --project p1 --document d1 ./report.pdf

  # Ingest an object from the configured object store
  ifctl ingest --document d2 s3://papers/2024/attention.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireScope(); err != nil {
				return err
			}
			path, err := resolvePath(args[0])
			if err != nil {
				return err
			}
			if documentID == "" {
				documentID = uuid.NewString()
			}

			var res ingestResponse
			raw, err := opts.client().call(cmd.Context(), http.MethodPost, "/v1/ingest", ingestRequest{
				UserID:       opts.userID,
				ProjectID:    opts.projectID,
				DocumentID:   documentID,
				FilePath:     path,
				OriginalName: name,
				MimeType:     mimeType,
			}, &res)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), raw, func(w io.Writer) {
				renderIngest(w, documentID, res)
			})
		},
	}

	cmd.Flags().StringVar(&documentID, "document", "", "document id (default: random UUID)")
	cmd.Flags().StringVar(&name, "name", "", "display name recorded on every chunk (default: file name)")
	cmd.Flags().StringVar(&mimeType, "mime", "", "MIME type (default: detected from the extension)")
	return cmd
}

func newQueryCmd(opts *options) *cobra.Command {
	var documentID, sessionID string
	var topK int

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a question about a document",
		Long: `Ask a question answered only from the chunks of one document.

Examples:
  ifctl query --document d1 "What is the main finding?"
  ifctl query --document d1 --top-k 10 what datasets were used`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireScope(); err != nil {
				return err
			}
			if documentID == "" {
				return errors.New("--document is required")
			}

			req := queryRequest{
				UserID:     opts.userID,
				ProjectID:  opts.projectID,
				DocumentID: documentID,
				Message:    strings.Join(args, " "),
				SessionID:  sessionID,
			}
			if cmd.Flags().Changed("top-k") {
				req.TopK = &topK
			}

			var res queryResponse
			raw, err := opts.client().call(cmd.Context(), http.MethodPost, "/v1/query", req, &res)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), raw, func(w io.Writer) {
				renderAnswer(w, res)
			})
		},
	}

	cmd.Flags().StringVar(&documentID, "document", "", "document id (required)")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id for log correlation")
	cmd.Flags().IntVar(&topK, "top-k", 6, "number of chunks to retrieve (1-20)")
	return cmd
}

func newDeleteCmd(opts *options) *cobra.Command {
	var documentID string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a document's indexed chunks",
		Long: `Delete every indexed chunk of one document. Deleting a document that
was never ingested succeeds.

Examples:
  ifctl delete --user u1 --project p1 --document d1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireScope(); err != nil {
				return err
			}
			if documentID == "" {
				return errors.New("--document is required")
			}

			var res deleteResponse
			raw, err := opts.client().call(cmd.Context(), http.MethodPost, "/v1/delete", deleteRequest{
				UserID:     opts.userID,
				ProjectID:  opts.projectID,
				DocumentID: documentID,
			}, &res)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), raw, func(w io.Writer) {
				renderDelete(w, res)
			})
		},
	}

	cmd.Flags().StringVar(&documentID, "document", "", "document id (required)")
	return cmd
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check insightflow server health",
		Long: `Check the health status of the insightflow HTTP server.

Examples:
  ifctl health
  ifctl health --server http://localhost:9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var res healthResponse
			raw, err := opts.client().call(cmd.Context(), http.MethodGet, "/health", nil, &res)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), raw, func(w io.Writer) {
				renderHealth(w, opts.serverURL, res)
			})
		},
	}
}

func (o *options) client() *client {
	return newClient(o.serverURL, o.timeout)
}

func (o *options) requireScope() error {
	var missing []string
	if o.userID == "" {
		missing = append(missing, "--user")
	}
	if o.projectID == "" {
		missing = append(missing, "--project")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s required", strings.Join(missing, " and "))
	}
	return nil
}

// print writes raw JSON with --json, otherwise the rendered form.
func (o *options) print(w io.Writer, raw []byte, render func(io.Writer)) error {
	if o.jsonOut {
		_, err := fmt.Fprintln(w, strings.TrimSpace(string(raw)))
		return err
	}
	render(w)
	return nil
}

// resolvePath makes local paths absolute. Object references pass through.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "s3://") || filepath.IsAbs(path) {
		return path, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	return abs, nil
}
