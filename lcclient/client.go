package lcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/programme-lv/streaks/domain"
	"golang.org/x/time/rate"
)

const DefaultGraphqlUrl = "https://leetcode.com/graphql/"

// Session carries the optional authenticated cookie of a user.
type Session struct {
	Cookie    string `json:"cookie"`
	CsrfToken string `json:"csrfToken,omitempty"`
}

// Activity is one accepted submission.
type Activity struct {
	ID        string
	Title     string
	TitleSlug string
	Timestamp time.Time
	Status    string
	Lang      string
}

type Profile struct {
	ActiveYears     []int
	Streak          int
	TotalActiveDays int
	// SubmissionCalendar maps a UTC day to its submission count.
	SubmissionCalendar map[domain.Day]int
}

type Client struct {
	url        string
	httpClient *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration
	fetchLimit int
	log        *slog.Logger
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option { return func(cl *Client) { cl.timeout = d } }

// WithRateLimit sets the global request budget shared by every caller.
func WithRateLimit(perSec float64, burst int) Option {
	return func(cl *Client) { cl.limiter = rate.NewLimiter(rate.Limit(perSec), burst) }
}

// WithFetchLimit bounds how many recent accepted submissions are requested.
func WithFetchLimit(n int) Option { return func(cl *Client) { cl.fetchLimit = n } }

func NewClient(url string, opts ...Option) *Client {
	if url == "" {
		url = DefaultGraphqlUrl
	}
	c := &Client{
		url:        url,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(2), 4),
		timeout:    15 * time.Second,
		fetchLimit: 20,
		log:        slog.Default().With("module", "lcclient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchActivity returns accepted submissions of username whose timestamp
// falls in day, in upstream order.
func (c *Client) FetchActivity(ctx context.Context, username string, day domain.Day, sess *Session) ([]Activity, error) {
	const op = "fetch activity"
	var data struct {
		RecentAcSubmissionList []struct {
			ID            string `json:"id"`
			Title         string `json:"title"`
			TitleSlug     string `json:"titleSlug"`
			Timestamp     string `json:"timestamp"`
			StatusDisplay string `json:"statusDisplay"`
			Lang          string `json:"lang"`
		} `json:"recentAcSubmissionList"`
	}
	vars := map[string]any{"username": username, "limit": c.fetchLimit}
	if err := c.do(ctx, op, recentAcSubmissionsQuery, vars, sess, &data); err != nil {
		return nil, err
	}
	if data.RecentAcSubmissionList == nil {
		return nil, &Error{Kind: KindNotFound, Op: op, Err: fmt.Errorf("user %q not found", username)}
	}

	res := make([]Activity, 0, len(data.RecentAcSubmissionList))
	for _, s := range data.RecentAcSubmissionList {
		secs, err := strconv.ParseInt(s.Timestamp, 10, 64)
		if err != nil {
			return nil, &Error{Kind: KindGeneric, Op: op, Err: fmt.Errorf("bad timestamp %q: %w", s.Timestamp, err)}
		}
		ts := time.Unix(secs, 0).UTC()
		if !day.Contains(ts) {
			continue
		}
		res = append(res, Activity{
			ID:        s.ID,
			Title:     s.Title,
			TitleSlug: s.TitleSlug,
			Timestamp: ts,
			Status:    s.StatusDisplay,
			Lang:      s.Lang,
		})
	}
	c.log.Debug("fetched activity", "username", username, "day", day, "count", len(res))
	return res, nil
}

func (c *Client) FetchProblem(ctx context.Context, slug string, sess *Session) (domain.ProblemMetadata, error) {
	const op = "fetch problem"
	var data struct {
		Question *struct {
			QuestionID string   `json:"questionId"`
			Title      string   `json:"title"`
			TitleSlug  string   `json:"titleSlug"`
			Difficulty string   `json:"difficulty"`
			Likes      int      `json:"likes"`
			Dislikes   int      `json:"dislikes"`
			IsPaidOnly bool     `json:"isPaidOnly"`
			AcRate     *float64 `json:"acRate"`
			TopicTags  []struct {
				Name string `json:"name"`
				Slug string `json:"slug"`
			} `json:"topicTags"`
		} `json:"question"`
	}
	if err := c.do(ctx, op, questionQuery, map[string]any{"titleSlug": slug}, sess, &data); err != nil {
		return domain.ProblemMetadata{}, err
	}
	q := data.Question
	if q == nil {
		return domain.ProblemMetadata{}, &Error{Kind: KindNotFound, Op: op, Err: fmt.Errorf("problem %q not found", slug)}
	}
	diff, err := domain.ParseDifficulty(q.Difficulty)
	if err != nil {
		diff = domain.DifficultyUnknown
	}
	tags := make([]string, 0, len(q.TopicTags))
	for _, t := range q.TopicTags {
		tags = append(tags, t.Name)
	}
	return domain.ProblemMetadata{
		TitleSlug:     q.TitleSlug,
		QuestionID:    q.QuestionID,
		Title:         q.Title,
		Difficulty:    diff,
		TopicTags:     tags,
		AcRate:        q.AcRate,
		Likes:         q.Likes,
		Dislikes:      q.Dislikes,
		IsPaidOnly:    q.IsPaidOnly,
		LastFetchedAt: time.Now().UTC(),
	}, nil
}

// FetchProfile reads the submission calendar for the current year.
func (c *Client) FetchProfile(ctx context.Context, username string, sess *Session) (Profile, error) {
	const op = "fetch profile"
	var data struct {
		MatchedUser *struct {
			UserCalendar *struct {
				ActiveYears        []int  `json:"activeYears"`
				Streak             int    `json:"streak"`
				TotalActiveDays    int    `json:"totalActiveDays"`
				SubmissionCalendar string `json:"submissionCalendar"`
			} `json:"userCalendar"`
		} `json:"matchedUser"`
	}
	vars := map[string]any{"username": username, "year": time.Now().UTC().Year()}
	if err := c.do(ctx, op, userCalendarQuery, vars, sess, &data); err != nil {
		return Profile{}, err
	}
	if data.MatchedUser == nil || data.MatchedUser.UserCalendar == nil {
		return Profile{}, &Error{Kind: KindNotFound, Op: op, Err: fmt.Errorf("user %q not found", username)}
	}
	cal := data.MatchedUser.UserCalendar
	p := Profile{
		ActiveYears:        cal.ActiveYears,
		Streak:             cal.Streak,
		TotalActiveDays:    cal.TotalActiveDays,
		SubmissionCalendar: map[domain.Day]int{},
	}
	if cal.SubmissionCalendar != "" {
		raw := map[string]int{}
		if err := json.Unmarshal([]byte(cal.SubmissionCalendar), &raw); err != nil {
			return Profile{}, &Error{Kind: KindGeneric, Op: op, Err: fmt.Errorf("bad submission calendar: %w", err)}
		}
		for ts, n := range raw {
			secs, err := strconv.ParseInt(ts, 10, 64)
			if err != nil {
				continue
			}
			p.SubmissionCalendar[domain.DayOf(time.Unix(secs, 0))] += n
		}
	}
	return p, nil
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) do(ctx context.Context, op string, query string, vars map[string]any, sess *Session, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return classifyTransport(op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return &Error{Kind: KindGeneric, Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return &Error{Kind: KindGeneric, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Referer", "https://leetcode.com/")
	req.Header.Set("Origin", "https://leetcode.com")
	if sess != nil {
		if sess.Cookie != "" {
			req.Header.Set("Cookie", sess.Cookie)
		}
		if sess.CsrfToken != "" {
			req.Header.Set("X-CSRFToken", sess.CsrfToken)
			req.Header.Set("X-Requested-With", "XMLHttpRequest")
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return classifyTransport(op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &Error{
			Kind:       kindFromStatus(resp.StatusCode),
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(truncate(raw, 200)))),
		}
	}

	var gql gqlResponse
	if err := json.Unmarshal(raw, &gql); err != nil {
		return &Error{Kind: KindGeneric, Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(gql.Errors) > 0 {
		msg := gql.Errors[0].Message
		kind := KindGeneric
		if strings.Contains(strings.ToLower(msg), "does not exist") {
			kind = KindNotFound
		}
		return &Error{Kind: kind, Op: op, Err: fmt.Errorf("graphql: %s", msg)}
	}
	if len(gql.Data) == 0 || string(gql.Data) == "null" {
		return &Error{Kind: KindGeneric, Op: op, Err: errors.New("empty data")}
	}
	if err := json.Unmarshal(gql.Data, out); err != nil {
		return &Error{Kind: KindGeneric, Op: op, Err: fmt.Errorf("decode data: %w", err)}
	}
	return nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
