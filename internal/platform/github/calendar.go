package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/recaphq/recap-api/internal/domain"
)

var (
	countPattern = regexp.MustCompile(`([\d,]+)\s+contribution`)
	totalPattern = regexp.MustCompile(`([\d,]+)\s+contributions?\s+in\s+the\s+last\s+year`)
)

type calendarDay struct {
	date  string
	count int
}

type calendar struct {
	days  []calendarDay
	total int
}

func (a *Adapter) fetchCalendar(ctx context.Context, username string) (*calendar, error) {
	req, err := a.newRequest(ctx, a.webURL+"/users/"+url.PathEscape(username)+"/contributions")
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contribution calendar request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("contribution calendar returned %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse contribution calendar: %w", err)
	}
	return parseCalendar(doc), nil
}

// parseCalendar reads day cells and their tooltips. Cells without a tooltip
// fall back to the data-level shade.
func parseCalendar(doc *goquery.Document) *calendar {
	tooltips := map[string]string{}
	doc.Find("tool-tip[for]").Each(func(_ int, s *goquery.Selection) {
		tooltips[s.AttrOr("for", "")] = s.Text()
	})

	cal := &calendar{}
	doc.Find("td.ContributionCalendar-day[data-date]").Each(func(_ int, s *goquery.Selection) {
		day := calendarDay{date: s.AttrOr("data-date", "")}
		if text, ok := tooltips[s.AttrOr("id", "")]; ok {
			day.count = parseCount(text)
		} else if lvl, err := strconv.Atoi(s.AttrOr("data-level", "0")); err == nil {
			day.count = lvl
		}
		cal.days = append(cal.days, day)
	})
	sort.Slice(cal.days, func(i, j int) bool { return cal.days[i].date < cal.days[j].date })

	doc.Find("h2").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := totalPattern.FindStringSubmatch(strings.Join(strings.Fields(s.Text()), " ")); m != nil {
			cal.total = atoi(m[1])
			return false
		}
		return true
	})
	if cal.total == 0 {
		for _, d := range cal.days {
			cal.total += d.count
		}
	}
	return cal
}

func parseCount(text string) int {
	if m := countPattern.FindStringSubmatch(text); m != nil {
		return atoi(m[1])
	}
	return 0
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	return n
}

func (c *calendar) heatmap(monthLanguages map[string][]string) domain.Heatmap {
	h := domain.Heatmap{
		Dates:  make([]string, 0, len(c.days)),
		Counts: make([]int, 0, len(c.days)),
	}
	maxCount := 0
	monthly := map[string]int{}
	var months []string
	for _, d := range c.days {
		h.Dates = append(h.Dates, d.date)
		h.Counts = append(h.Counts, d.count)
		if d.count > maxCount {
			maxCount = d.count
		}
		if len(d.date) >= 7 {
			m := d.date[:7]
			if _, seen := monthly[m]; !seen {
				months = append(months, m)
			}
			monthly[m] += d.count
		}
	}
	for _, m := range months {
		h.Monthly = append(h.Monthly, domain.MonthlyStat{
			Month:        m,
			Count:        monthly[m],
			TopLanguages: monthLanguages[m],
		})
	}
	h.Intensity = domain.IntensityFor(maxCount)
	return h
}
