// Package newsrefresher is the background worker that keeps news content
// fresh: it fetches the configured RSS feeds, publishes the shared home-news
// snapshot, and re-matches every queued user's filters against the fetched
// stories. Per-user refreshes are requested through a buffered job queue and
// processed in batches; a cron schedule periodically enqueues a full refresh.
package newsrefresher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/robfig/cron/v3"

	"github.com/patric-chuzhbe/newswatcher/internal/db/storage"
	"github.com/patric-chuzhbe/newswatcher/internal/logger"
	"github.com/patric-chuzhbe/newswatcher/internal/models"
	"github.com/patric-chuzhbe/newswatcher/internal/user"
)

const (
	maxHomeNewsStories   = 50
	maxContentSnippetLen = 300
	maxSourceLen         = 50
	fetchTimeout         = time.Minute
)

type refresherStorage interface {
	ListUserIDs(ctx context.Context) ([]string, error)

	UpdateUserIf(
		ctx context.Context,
		userID string,
		predicate storage.Predicate,
		mutate storage.Mutation,
	) (*user.User, error)

	SetHomeNews(ctx context.Context, stories []user.Story) error
}

type feedParser interface {
	ParseURLWithContext(feedURL string, ctx context.Context) (*gofeed.Feed, error)
}

// NewsRefresher consumes refresh jobs from a buffered queue and applies
// fetched stories to user documents through the conditional-update
// primitive, so a refresh racing a user mutation can never corrupt the
// document.
type NewsRefresher struct {
	db                       refresherStorage
	parser                   feedParser
	feedURLs                 []string
	schedule                 string
	queue                    chan *models.RefreshJob
	errorChannel             chan error
	delayBetweenQueueFetches time.Duration
	cron                     *cron.Cron
}

func New(
	db refresherStorage,
	parser feedParser,
	feedURLs []string,
	schedule string,
	channelCapacity int,
	delayBetweenQueueFetches time.Duration,
) *NewsRefresher {
	return &NewsRefresher{
		db:                       db,
		parser:                   parser,
		feedURLs:                 feedURLs,
		schedule:                 schedule,
		queue:                    make(chan *models.RefreshJob, channelCapacity),
		errorChannel:             make(chan error, channelCapacity),
		delayBetweenQueueFetches: delayBetweenQueueFetches,
		cron:                     cron.New(),
	}
}

// EnqueueJob schedules a refresh of one user's filters, or of every user
// when the job's All flag is set.
func (r *NewsRefresher) EnqueueJob(job *models.RefreshJob) {
	r.queue <- job
}

// ListenErrors invokes callback for every error produced by the worker.
func (r *NewsRefresher) ListenErrors(callback func(error)) {
	go func() {
		for err := range r.errorChannel {
			callback(err)
		}
	}()
}

// Run starts the worker goroutine and the periodic full-refresh schedule.
// The worker drains the queue into a batch and processes it on every tick;
// it stops when the context is canceled.
func (r *NewsRefresher) Run(ctx context.Context) error {
	if r.schedule != "" {
		_, err := r.cron.AddFunc(r.schedule, func() {
			r.EnqueueJob(&models.RefreshJob{All: true})
		})
		if err != nil {
			return err
		}
		r.cron.Start()
	}

	go func() {
		ticker := time.NewTicker(r.delayBetweenQueueFetches)
		defer ticker.Stop()

		pendingUserIDs := map[string]bool{}
		refreshAll := false

		for {
			select {
			case job := <-r.queue:
				if job.All {
					refreshAll = true
				} else {
					pendingUserIDs[job.UserID] = true
				}

			case <-ticker.C:
				if !refreshAll && len(pendingUserIDs) == 0 {
					continue
				}
				if err := r.process(ctx, refreshAll, pendingUserIDs); err != nil {
					r.errorChannel <- err
					continue
				}
				pendingUserIDs = map[string]bool{}
				refreshAll = false

			case <-ctx.Done():
				r.cron.Stop()
				return
			}
		}
	}()

	return nil
}

func (r *NewsRefresher) process(ctx context.Context, refreshAll bool, pendingUserIDs map[string]bool) error {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	stories, err := r.fetchStories(fetchCtx)
	if err != nil {
		return err
	}

	homeNews := stories
	if len(homeNews) > maxHomeNewsStories {
		homeNews = homeNews[:maxHomeNewsStories]
	}
	if err := r.db.SetHomeNews(ctx, homeNews); err != nil {
		return err
	}

	userIDs := make([]string, 0, len(pendingUserIDs))
	if refreshAll {
		userIDs, err = r.db.ListUserIDs(ctx)
		if err != nil {
			return err
		}
	} else {
		for userID := range pendingUserIDs {
			userIDs = append(userIDs, userID)
		}
	}

	now := time.Now().UnixMilli()
	for _, userID := range userIDs {
		_, err := r.db.UpdateUserIf(
			ctx,
			userID,
			nil,
			func(usr *user.User) {
				for i := range usr.NewsFilters {
					usr.NewsFilters[i].NewsStories = matchStories(stories, usr.NewsFilters[i].KeyWords)
					usr.NewsFilters[i].TimeOfLastScan = now
				}
			},
		)
		// The account may be gone by the time its refresh runs.
		if err != nil && !errors.Is(err, models.ErrNoMatch) {
			return err
		}
	}

	logger.Log.Infof("refreshed news filters for %d users", len(userIDs))

	return nil
}

func (r *NewsRefresher) fetchStories(ctx context.Context) ([]user.Story, error) {
	stories := []user.Story{}
	for _, feedURL := range r.feedURLs {
		feed, err := r.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			return nil, fmt.Errorf("error fetching the feed %q: %w", feedURL, err)
		}

		for _, item := range feed.Items {
			stories = append(stories, storyFromFeedItem(feed, item))
		}
	}

	return stories, nil
}

func storyFromFeedItem(feed *gofeed.Feed, item *gofeed.Item) user.Story {
	date := time.Now()
	if item.PublishedParsed != nil {
		date = *item.PublishedParsed
	}

	imageURL := ""
	if item.Image != nil {
		imageURL = item.Image.URL
	} else if feed.Image != nil {
		imageURL = feed.Image.URL
	}

	linkHash := sha256.Sum256([]byte(item.Link))

	return user.Story{
		StoryID:        hex.EncodeToString(linkHash[:]),
		Title:          truncate(item.Title, 200),
		Source:         truncate(feed.Title, maxSourceLen),
		Link:           truncate(item.Link, 300),
		ImageURL:       truncate(imageURL, 300),
		ContentSnippet: truncate(item.Description, maxContentSnippetLen),
		Date:           date.UnixMilli(),
		Hours:          fmt.Sprintf("%d hours ago", int(time.Since(date).Hours())),
	}
}

func matchStories(stories []user.Story, keyWords []string) []user.Story {
	matched := []user.Story{}
	for _, story := range stories {
		haystack := strings.ToLower(story.Title + " " + story.ContentSnippet)
		for _, keyWord := range keyWords {
			if strings.Contains(haystack, strings.ToLower(keyWord)) {
				matched = append(matched, story)
				break
			}
		}
		if len(matched) >= user.MaxFilterStories {
			break
		}
	}

	return matched
}

func truncate(value string, maxLen int) string {
	runes := []rune(value)
	if len(runes) <= maxLen {
		return value
	}

	return string(runes[:maxLen])
}
