package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/dockeeper/internal/client/models"
	"github.com/dmitrijs2005/dockeeper/internal/client/services"
	"github.com/dmitrijs2005/dockeeper/internal/client/syncer"
)

func (a *App) Connect(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("connect <mock|dropbox|s3|postgres>")
	}
	req, err := a.facade.Connect(ctx, models.ProviderKind(args[0]))
	if err != nil {
		return err
	}
	if !req.Completed {
		fmt.Fprintln(a.out, "Open this URL to authorize DocKeeper:")
		fmt.Fprintln(a.out, "  "+req.URL)
		fmt.Fprintln(a.out, "Then run 'callback' and paste the authorization code.")
		return nil
	}
	fmt.Fprintf(a.out, "Connected to %s.\n", args[0])
	return a.afterConnect(ctx)
}

func (a *App) Callback(ctx context.Context, args []string) error {
	var code string
	switch len(args) {
	case 0:
		c, err := GetSecret(a.out, "Authorization code")
		if err != nil {
			return err
		}
		code = c
	case 1:
		code = args[0]
	default:
		return usage("callback [code]")
	}
	if code == "" {
		return usage("callback [code]")
	}
	if err := a.facade.HandleAuthCallback(ctx, code); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Connected.")
	return a.afterConnect(ctx)
}

// afterConnect prepares the remote folder, flushes staged uploads and syncs.
func (a *App) afterConnect(ctx context.Context) error {
	if err := a.facade.InitializeRemoteFolder(ctx); err != nil {
		return fmt.Errorf("remote folder: %w", err)
	}
	if n, err := a.library.RetryUploads(ctx); err != nil {
		a.logger.Warn(ctx, "staged uploads not retried", "error", err)
	} else if n > 0 {
		fmt.Fprintf(a.out, "Uploaded %d staged file(s).\n", n)
	}
	return a.Sync(ctx, nil)
}

func (a *App) Disconnect(ctx context.Context, _ []string) error {
	if err := a.facade.Disconnect(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Disconnected.")
	return nil
}

func (a *App) Status(ctx context.Context, _ []string) error {
	provider := "none"
	if kind, ok := a.facade.CurrentProvider(); ok {
		provider = string(kind)
	}
	st := a.engine.Status()

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Provider:\t%s\n", provider)
	fmt.Fprintf(w, "Connection:\t%s\n", a.facade.State())
	fmt.Fprintf(w, "Last sync:\t%s\n", formatSyncTime(st.LastSyncTime))
	fmt.Fprintf(w, "Pending changes:\t%t\n", st.PendingChanges)
	fmt.Fprintf(w, "Background sync:\t%t\n", st.Background)
	if st.LastResult != nil && !st.LastResult.Success {
		fmt.Fprintf(w, "Last errors:\t%s\n", strings.Join(st.LastResult.Errors, "; "))
	}
	return w.Flush()
}

func formatSyncTime(ms int64) string {
	if ms == 0 {
		return "never"
	}
	return time.UnixMilli(ms).Local().Format(time.DateTime)
}

func (a *App) Add(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("add <path>")
	}
	doc, err := a.library.UploadAndAdd(ctx, args[0], models.DocumentMetadata{})
	if errors.Is(err, services.ErrUploadDeferred) {
		fmt.Fprintf(a.out, "Added %s (%s); upload pending: %v\n", doc.Name, doc.ID, err)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Added %s (%s).\n", doc.Name, doc.ID)
	return nil
}

func (a *App) List(ctx context.Context, args []string) error {
	if len(args) > 2 {
		return usage("list [limit] [offset]")
	}
	nums := make([]int, 2)
	for i, s := range args {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return usage("list [limit] [offset]")
		}
		nums[i] = n
	}

	docs, err := a.library.ListDocuments(ctx, nums[0], nums[1])
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Fprintln(a.out, "No documents.")
		return nil
	}

	names, err := a.tagNames(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUPLOADED\tNAME\tTAGS")
	for _, d := range docs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.UploadDate, d.Name, joinTags(d.Tags, names))
	}
	return w.Flush()
}

func (a *App) tagNames(ctx context.Context) (map[string]string, error) {
	tags, err := a.library.Tags(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(tags))
	for _, t := range tags {
		names[t.ID] = t.Name
	}
	return names, nil
}

func joinTags(ids []string, names map[string]string) string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if n, ok := names[id]; ok {
			out = append(out, n)
		} else {
			out = append(out, id)
		}
	}
	return strings.Join(out, ", ")
}

func (a *App) Show(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("show <id>")
	}
	d, err := a.library.GetDocument(ctx, args[0])
	if err != nil {
		return err
	}
	names, err := a.tagNames(ctx)
	if err != nil {
		return err
	}
	_, hasThumb, err := a.library.Thumbnail(ctx, d.ID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", d.ID)
	fmt.Fprintf(w, "Name:\t%s\n", d.Name)
	fmt.Fprintf(w, "Path:\t%s\n", d.Path)
	fmt.Fprintf(w, "Uploaded:\t%s\n", d.UploadDate)
	fmt.Fprintf(w, "Tags:\t%s\n", joinTags(d.Tags, names))
	fmt.Fprintf(w, "Detections:\t%s\n", strings.Join(d.Detections, ", "))
	fmt.Fprintf(w, "Thumbnail:\t%t\n", hasThumb)
	if d.OCR != "" {
		fmt.Fprintf(w, "OCR:\t%s\n", d.OCR)
	}
	return w.Flush()
}

func (a *App) Tag(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("tag <id> <tag>")
	}
	return a.library.TagDocument(ctx, args[0], args[1])
}

func (a *App) RemoveDocument(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("rmdoc <id>")
	}
	if err := a.library.DeleteDocument(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Removed.")
	return nil
}

func (a *App) AddTag(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usage("addtag <name> [color]")
	}
	color := ""
	if len(args) == 2 {
		color = args[1]
	}
	tag, err := a.library.AddTag(ctx, args[0], color)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Tag %s (%s) created.\n", tag.Name, tag.ID)
	return nil
}

func (a *App) Settings(ctx context.Context, args []string) error {
	switch len(args) {
	case 0:
		s, err := a.library.Settings(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Processing method: %s\n", s.ProcessingMethod)
		if n := len(s.LastActivity); n > 0 {
			last := s.LastActivity[n-1]
			fmt.Fprintf(a.out, "Last activity: %s at %s\n", last.Action, last.Timestamp)
		}
		return nil
	case 1:
		return a.library.SetProcessingMethod(ctx, models.ProcessingMethod(args[0]))
	default:
		return usage("settings [client-side|api]")
	}
}

func (a *App) Sync(ctx context.Context, _ []string) error {
	res := a.engine.Synchronize(ctx)
	a.printResult(res)
	if !res.Success {
		return errors.New(strings.Join(res.Errors, "; "))
	}
	return nil
}

func (a *App) printResult(r syncer.Result) {
	if r.Success {
		fmt.Fprintf(a.out, "Synced: %d document(s), %d tag(s) changed.\n", r.DocumentsChanged, r.TagsChanged)
		return
	}
	fmt.Fprintln(a.out, "Sync failed.")
}

func (a *App) Uploads(ctx context.Context, _ []string) error {
	n, err := a.library.RetryUploads(ctx)
	fmt.Fprintf(a.out, "Uploaded %d staged file(s).\n", n)
	return err
}

func (a *App) Wipe(ctx context.Context, args []string) error {
	if len(args) != 1 || args[0] != "confirm" {
		return usage("wipe confirm")
	}
	if err := a.store.ClearAllData(ctx); err != nil {
		return err
	}
	a.engine.DiscardChanges()
	fmt.Fprintln(a.out, "Local cache cleared.")
	return nil
}
