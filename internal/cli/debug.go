package cli

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/otiai10/doggyday/internal/api"
	"github.com/otiai10/doggyday/internal/storage"
	"github.com/otiai10/doggyday/internal/store"
)

// DiagCollection receives the documents written by "diag"
const DiagCollection = "tests"

var debugAuthCmd = &cobra.Command{
	Use:   "debug-auth",
	Short: "Show the Google sign-in setup and the signed-in user",
	Long: `Show the OAuth configuration this process would use for Google sign-in
(platform, app scheme, client IDs, redirect URI) together with the uid,
email and linked providers of the signed-in user.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.Diagnose().ClientID != "" {
			_ = awaitGoogleReady(cmd.Context(), a.Session(), googleReadyTimeout)
		}
		return printJSON(cmd, api.NewAuthDebug(a.Diagnose(), a.Session().State().User))
	},
}

var diagCmd = &cobra.Command{
	Use:   "diag",
	Short: "Check connectivity to Firestore and Cloud Storage",
	Long: `Write a timestamped document to the "tests" collection and read it
back, then upload, resolve and delete a probe object in the bucket.

Exits with an error if any step fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		keep, _ := cmd.Flags().GetBool("keep")

		a, _, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		failed := 0
		step := func(name string, err error, detail string) {
			if err != nil {
				failed++
				fmt.Fprintf(out, "FAIL  %s: %v\n", name, err)
				return
			}
			fmt.Fprintf(out, "ok    %s %s\n", name, detail)
		}

		ctx := cmd.Context()
		if docs := a.Documents(); docs == nil {
			step("firestore", ErrNoBackend, "")
		} else {
			message := fmt.Sprintf("doggyday diag %d", time.Now().UnixNano())
			id, err := docs.Create(ctx, DiagCollection, map[string]any{
				"message":   message,
				"timestamp": time.Now().UTC(),
			})
			step("firestore write", err, DiagCollection+"/"+id)
			if err == nil {
				rec, err := docs.Read(ctx, DiagCollection, id)
				if err == nil && (rec == nil || rec.String("message") != message) {
					err = fmt.Errorf("document %s did not round-trip", id)
				}
				step("firestore read", err, "")

				if !keep {
					step("firestore delete", docs.Delete(ctx, DiagCollection, id), "")
				}
			}
			_, err = docs.Query(ctx, DiagCollection, []store.Condition{
				store.Where("message", store.OpEqual, message),
			}, nil)
			step("firestore query", err, "")
		}

		if objects := a.Objects(); objects == nil {
			step("storage", fmt.Errorf("photo storage is not configured"), "")
		} else {
			objectPath := storage.GenerateFilePath("diag", DiagCollection, ".txt")
			body := []byte("doggyday storage probe\n")
			url, err := objects.Upload(ctx, objectPath, bytes.NewReader(body), int64(len(body)), nil)
			step("storage upload", err, objectPath)
			if err == nil {
				resolved, err := objects.URL(ctx, objectPath)
				if err == nil && !strings.HasPrefix(resolved, "http") {
					err = fmt.Errorf("unexpected download URL %q", resolved)
				}
				step("storage url", err, url)

				if !keep {
					step("storage delete", objects.Delete(ctx, objectPath), "")
				}
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d diagnostic step(s) failed", failed)
		}
		return nil
	},
}

func init() {
	diagCmd.Flags().Bool("keep", false, "leave the probe document and object in place")

	rootCmd.AddCommand(debugAuthCmd)
	rootCmd.AddCommand(diagCmd)
}
