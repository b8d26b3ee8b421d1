// reviewctl is a terminal client for the records API. Mutations go through the
// optimistic coordinator so the cached page reflects them immediately.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/Ayash-Bera/reviewboard/backend/internal/client"
	"github.com/Ayash-Bera/reviewboard/backend/internal/config"
	"github.com/Ayash-Bera/reviewboard/backend/internal/coordinator"
	"github.com/Ayash-Bera/reviewboard/backend/internal/models"
	"github.com/Ayash-Bera/reviewboard/backend/internal/pagination"
	"github.com/Ayash-Bera/reviewboard/backend/internal/validation"
	"github.com/Ayash-Bera/reviewboard/backend/pkg/utils"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const usage = `usage: reviewctl <command> [flags]

commands:
  list                 show one page of reviews
  show <id>            show a single review
  create               create a review
  update <id>          replace a review
  delete <id>          delete a review

list, create, update and delete accept -page -search -author -filter-rating
to choose the page that is displayed afterwards.
`

type app struct {
	api    *client.Client
	coord  *coordinator.Coordinator
	out    io.Writer
	logger *logrus.Logger
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ValidateClient(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := utils.InitLogger(cfg.Log.Level)
	logger.SetOutput(os.Stderr)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	api := client.NewClient(cfg.Client.BaseURL, cfg.Client.Timeout, logger).WithRetry(client.RetryConfig{
		MaxRetries: cfg.Client.ReadRetries,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
	})

	a := &app{
		api: api,
		coord: coordinator.New(retryingReads{api}, coordinator.Options{
			PageSize: cfg.Pagination.PageSize,
			Timeout:  cfg.Client.Timeout,
		}, logger),
		out:    os.Stdout,
		logger: logger,
	}

	ctx := context.Background()
	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	page := fs.Int("page", 1, "page to display")
	search := fs.String("search", "", "title substring filter")
	author := fs.String("author", "", "exact author filter")
	filterRating := fs.String("filter-rating", "", "exact rating filter")
	title := fs.String("title", "", "review title")
	content := fs.String("content", "", "review body")
	authorName := fs.String("by", "", "review author")
	rating := fs.Int("rating", 0, "review rating 1-5")

	id, rest, err := splitID(cmd, args)
	if err != nil {
		return err
	}
	if err := fs.Parse(rest); err != nil {
		return err
	}

	key := coordinator.NewKey(models.NewReviewFilter(*search, *author, *filterRating), *page)
	input := models.ReviewInput{Title: *title, Content: *content, Author: *authorName, Rating: *rating}

	switch cmd {
	case "list":
		return a.list(ctx, key)
	case "show":
		review, err := a.api.GetReviewWithRetry(ctx, id)
		if err != nil {
			return err
		}
		a.printReviews([]models.Review{*review})
		return nil
	case "create":
		draft, err := validation.NewDraft(input)
		if err != nil {
			return err
		}
		return a.mutate(ctx, key, func() error {
			created, err := a.coord.Create(ctx, draft)
			if err == nil {
				fmt.Fprintf(a.out, "Created review %d\n", created.ID)
			}
			return err
		})
	case "update":
		draft, err := validation.NewDraft(input)
		if err != nil {
			return err
		}
		return a.mutate(ctx, key, func() error {
			updated, err := a.coord.Update(ctx, id, draft)
			if err == nil {
				fmt.Fprintf(a.out, "Updated review %d\n", updated.ID)
			}
			return err
		})
	case "delete":
		return a.mutate(ctx, key, func() error {
			err := a.coord.Delete(ctx, id)
			if err == nil {
				fmt.Fprintf(a.out, "Deleted review %d\n", id)
			}
			return err
		})
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// retryingReads hands the coordinator page loads that retry transient
// failures. Mutations still go out once.
type retryingReads struct {
	*client.Client
}

func (r retryingReads) ListReviews(ctx context.Context, filter models.ReviewFilter, page int) (*models.PageResult, error) {
	return r.Client.ListReviewsWithRetry(ctx, filter, page)
}

// splitID pulls the positional id off commands that take one.
func splitID(cmd string, args []string) (uint, []string, error) {
	switch cmd {
	case "show", "update", "delete":
	default:
		return 0, args, nil
	}
	if len(args) == 0 {
		return 0, nil, fmt.Errorf("%s needs a review id", cmd)
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || id == 0 {
		return 0, nil, models.NewValidationError("id", "Wrong id format")
	}
	return uint(id), args[1:], nil
}

func (a *app) list(ctx context.Context, key coordinator.Key) error {
	result, err := a.coord.Load(ctx, key)
	if err != nil {
		return err
	}
	a.printPage(key, result)
	return nil
}

// mutate loads the displayed page first so the mutation has a cached view to
// act on, then shows the refreshed page.
func (a *app) mutate(ctx context.Context, key coordinator.Key, op func() error) error {
	if _, err := a.coord.Load(ctx, key); err != nil {
		a.logger.WithError(err).Warn("Could not load page before mutation")
	}

	opErr := op()
	if errors.Is(opErr, models.ErrStaleReference) {
		fmt.Fprintln(a.out, "The list was out of date and has been refreshed.")
	}

	if err := a.list(ctx, key); err != nil && opErr == nil {
		return err
	}
	return opErr
}

func (a *app) printPage(key coordinator.Key, result *models.PageResult) {
	a.printReviews(result.Reviews)
	fmt.Fprintln(a.out)
	fmt.Fprintf(a.out, "Pages: %s\n", pagination.String(pagination.Window(key.Page, max(result.Pages, 1))))
	fmt.Fprintf(a.out, "Authors: %v\n", result.UniqueAuthors)
}

func (a *app) printReviews(reviews []models.Review) {
	if len(reviews) == 0 {
		fmt.Fprintln(a.out, "No reviews.")
		return
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tAUTHOR\tRATING\tCREATED")
	for _, r := range reviews {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", r.ID, r.Title, r.Author, r.Rating, r.CreatedAt.Format("2006-01-02"))
	}
	_ = w.Flush()
}

// describe renders an error for a terminal user, listing field messages for
// validation failures. A timeout leaves the outcome of a mutation unknown.
func describe(err error) string {
	if client.IsTimeout(err) {
		return "The request timed out. The change may still have been applied; run list to check."
	}
	var e *models.Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	if e.Kind == models.KindValidationFailed && len(e.Fields) > 1 {
		msg := "Invalid review:"
		for field, m := range e.Fields {
			msg += fmt.Sprintf("\n  %s: %s", field, m)
		}
		return msg
	}
	return e.Error()
}
