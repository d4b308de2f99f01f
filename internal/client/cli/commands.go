package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/campusfix/campusfix/internal/client/fallback"
	"github.com/campusfix/campusfix/internal/client/reconcile"
	"github.com/campusfix/campusfix/internal/models"
)

var errNotLoggedIn = errors.New("log in first")

func (a *App) cmdRegister(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: register <username>")
	}
	password, err := a.readPassword("password: ")
	if err != nil {
		return err
	}
	if err := a.remote.Register(ctx, args[0], password); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "registered, now log in")
	return nil
}

func (a *App) cmdLogin(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: login <username>")
	}
	password, err := a.readPassword("password: ")
	if err != nil {
		return err
	}
	if err := a.remote.Login(ctx, args[0], password); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "logged in as %s\n", args[0])
	return nil
}

func parseCollection(args []string) (models.Collection, error) {
	if len(args) != 1 {
		return "", errors.New("usage: <command> <collection>")
	}
	c := models.Collection(args[0])
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", models.ErrUnknownCollection, args[0])
	}
	return c, nil
}

func (a *App) cmdList(ctx context.Context, args []string) error {
	collection, err := parseCollection(args)
	if err != nil {
		return err
	}
	v := reconcile.NewView(a.remote, nil, a.cache, a.logger, reconcile.Options{
		Collection: collection,
	})
	if err := v.Load(ctx); err != nil {
		return err
	}
	a.printList(v.Snapshot(), v.Total())
	return nil
}

func (a *App) cmdMine(ctx context.Context, args []string) error {
	if a.remote.UserID() == "" {
		return errNotLoggedIn
	}
	collection, err := parseCollection(args)
	if err != nil {
		return err
	}
	me := a.remote.UserID()
	v := reconcile.NewView(a.remote, nil, a.cache, a.logger, reconcile.Options{
		Collection: collection,
		Filter:     models.Eq1("ownerId", me),
	})

	// An unreachable store is exactly what the local cache is for: show the
	// cached records under an error banner instead of nothing.
	loadErr := v.Load(ctx)
	if err := v.MergeFallback(ctx, mergePurpose(collection), me, reconcile.DedupeContentMatch); err != nil {
		return err
	}
	if loadErr != nil {
		fmt.Fprintf(a.out, "! remote fetch failed (%v), showing cached records\n", loadErr)
	}
	a.printList(v.Snapshot(), v.Total())
	return nil
}

func (a *App) cmdWatch(ctx context.Context, args []string) error {
	collection, err := parseCollection(args)
	if err != nil {
		return err
	}
	v := reconcile.NewView(a.remote, a.feeds, a.cache, a.logger, reconcile.Options{
		Collection: collection,
		OnChange: func(items []models.Entity) {
			fmt.Fprintf(a.out, "-- %d rows --\n", len(items))
			for _, e := range items {
				a.printEntity(e)
			}
		},
	})
	defer v.Close()
	if err := v.Load(ctx); err != nil {
		return err
	}
	a.printList(v.Snapshot(), v.Total())
	fmt.Fprintln(a.out, "watching, press Enter to stop")
	_, _ = a.in.ReadString('\n')
	return nil
}

func (a *App) cmdIssue(ctx context.Context, args []string) error {
	return a.submit(ctx, models.CollectionIssues, args)
}

func (a *App) cmdReport(ctx context.Context, args []string) error {
	return a.submit(ctx, models.CollectionReports, args)
}

// submit is the write path: optional photo upload, then the row insert, with
// a fallback-cache write-through on both outcomes. An upload failure does not
// abort the submission; the row goes in without a media reference and flagged
// for a manual retry.
func (a *App) submit(ctx context.Context, collection models.Collection, args []string) error {
	me := a.remote.UserID()
	if me == "" {
		return errNotLoggedIn
	}
	if len(args) == 0 {
		return errors.New("usage: <title> [photo-path]")
	}
	title := args[0]
	var photoPath string
	if len(args) > 1 {
		photoPath = args[1]
	}

	imageURL, uploadPending := "", false
	if photoPath != "" {
		url, err := a.uploadPhoto(ctx, photoPath)
		if err != nil {
			fmt.Fprintf(a.out, "! photo upload failed (%v), submitting without it\n", err)
			uploadPending = true
		} else {
			imageURL = url
		}
	}

	fields := map[string]any{"title": title}
	if imageURL != "" {
		fields["imageUrl"] = imageURL
	}
	if uploadPending {
		fields["uploadPending"] = true
	}

	purpose := mergePurpose(collection)
	stored, err := a.remote.Insert(ctx, collection, fields)
	if err != nil {
		// The store is unreachable or rejected us: keep the submission
		// locally so the next merged view still shows it.
		local := a.localRecord(collection, me, title, imageURL, uploadPending)
		if cacheErr := a.cache.Append(ctx, purpose, local); cacheErr != nil {
			return fmt.Errorf("insert failed (%v) and local save failed: %w", err, cacheErr)
		}
		fmt.Fprintf(a.out, "! remote insert failed (%v), saved locally as %s\n", err, local.Meta().ID)
		return nil
	}

	if err := a.cache.Append(ctx, purpose, stored); err != nil {
		a.logger.Warn(ctx, "write-through to fallback cache failed", "error", err)
	}
	fmt.Fprintf(a.out, "submitted %s\n", stored.Meta().ID)
	return nil
}

func (a *App) localRecord(collection models.Collection, owner, title, imageURL string, uploadPending bool) models.Entity {
	now := time.Now().UTC()
	meta := models.Meta{
		ID:        fallback.NewLocalID(),
		OwnerID:   owner,
		Status:    models.DefaultStatus(collection),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if collection == models.CollectionIssues {
		return &models.Issue{EntityMeta: meta, Title: title, ImageURL: imageURL, UploadPending: uploadPending}
	}
	return &models.Report{EntityMeta: meta, Title: title, ImageURL: imageURL, UploadPending: uploadPending}
}

func (a *App) uploadPhoto(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		ext = "bin"
	}
	// The storage interface does not guarantee path uniqueness; owner plus
	// timestamp keeps collisions out in practice.
	key := fmt.Sprintf("%s-%d.%s", a.remote.UserID(), time.Now().UnixNano(), ext)
	return a.remote.UploadObject(ctx, a.cfg.MediaBucket, key, data)
}

func (a *App) cmdResolve(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: resolve <issue-id>")
	}
	return a.remote.Update(ctx, models.CollectionIssues, args[0], map[string]any{
		"status": models.StatusResolved,
	})
}

func (a *App) cmdEvents(ctx context.Context) error {
	v := reconcile.NewView(a.remote, nil, nil, a.logger, reconcile.Options{
		Collection: models.CollectionEvents,
		Filter:     models.Eq1("status", models.StatusPublished),
		Sort:       models.Sort{Field: "startsAt"},
	})
	if err := v.Load(ctx); err != nil {
		return err
	}
	a.printList(v.Snapshot(), v.Total())
	return nil
}

func (a *App) cmdSignup(ctx context.Context, args []string) error {
	if a.remote.UserID() == "" {
		return errNotLoggedIn
	}
	if len(args) != 1 {
		return errors.New("usage: signup <event-id>")
	}
	stored, err := a.remote.Insert(ctx, models.CollectionRegistrations, map[string]any{
		"eventId": args[0],
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "registered: %s\n", stored.Meta().ID)
	return nil
}

func mergePurpose(c models.Collection) string {
	return "my-" + string(c)
}

func (a *App) printList(items []models.Entity, total int) {
	for _, e := range items {
		a.printEntity(e)
	}
	fmt.Fprintf(a.out, "%d shown, %d total\n", len(items), total)
}

func (a *App) printEntity(e models.Entity) {
	m := e.Meta()
	title, _ := e.Field("title")
	local := ""
	if strings.HasPrefix(m.ID, models.LocalIDPrefix) {
		local = " (local)"
	}
	fmt.Fprintf(a.out, "%s  %-12s %s%s\n", m.CreatedAt.Format("2006-01-02 15:04"), m.Status, title, local)
}
