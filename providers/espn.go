// providers/espn.go
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// nbaTeams maps free-text team names to ESPN scoreboard abbreviations.
var nbaTeams = map[string]string{
	"atlanta hawks": "atl", "hawks": "atl",
	"boston celtics": "bos", "celtics": "bos",
	"brooklyn nets": "bkn", "nets": "bkn",
	"charlotte hornets": "cha", "hornets": "cha",
	"chicago bulls": "chi", "bulls": "chi",
	"cleveland cavaliers": "cle", "cavaliers": "cle", "cavs": "cle",
	"dallas mavericks": "dal", "mavericks": "dal", "mavs": "dal",
	"denver nuggets": "den", "nuggets": "den",
	"detroit pistons": "det", "pistons": "det",
	"golden state warriors": "gs", "warriors": "gs",
	"houston rockets": "hou", "rockets": "hou",
	"indiana pacers": "ind", "pacers": "ind",
	"los angeles clippers": "lac", "la clippers": "lac", "clippers": "lac",
	"los angeles lakers": "lal", "la lakers": "lal", "lakers": "lal",
	"memphis grizzlies": "mem", "grizzlies": "mem",
	"miami heat": "mia", "heat": "mia",
	"milwaukee bucks": "mil", "bucks": "mil",
	"minnesota timberwolves": "min", "timberwolves": "min", "wolves": "min",
	"new orleans pelicans": "no", "pelicans": "no",
	"new york knicks": "ny", "knicks": "ny",
	"oklahoma city thunder": "okc", "thunder": "okc",
	"orlando magic": "orl", "magic": "orl",
	"philadelphia 76ers": "phi", "76ers": "phi", "sixers": "phi",
	"phoenix suns": "phx", "suns": "phx",
	"portland trail blazers": "por", "trail blazers": "por", "blazers": "por",
	"sacramento kings": "sac", "kings": "sac",
	"san antonio spurs": "sa", "spurs": "sa",
	"toronto raptors": "tor", "raptors": "tor",
	"utah jazz": "utah", "jazz": "utah",
	"washington wizards": "wsh", "wizards": "wsh",
}

// ScoreboardClient fetches game results from ESPN's public (keyless) scoreboard.
// It never surfaces provider-level problems as errors past this boundary:
// missing games, non-final games and upstream failures all come back as
// descriptive evidence text the judge can reason about.
type ScoreboardClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewScoreboardClient() *ScoreboardClient {
	return &ScoreboardClient{
		baseURL: "https://site.api.espn.com",
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// NewScoreboardClientWithBase is used by tests to point at a fake ESPN.
func NewScoreboardClientWithBase(baseURL string) *ScoreboardClient {
	c := NewScoreboardClient()
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type espnScoreboard struct {
	Events []espnEvent `json:"events"`
}

type espnEvent struct {
	Status struct {
		Type struct {
			Completed bool   `json:"completed"`
			Detail    string `json:"detail"`
		} `json:"type"`
	} `json:"status"`
	Competitions []struct {
		Competitors []espnCompetitor `json:"competitors"`
	} `json:"competitions"`
}

type espnCompetitor struct {
	HomeAway string `json:"homeAway"`
	Score    string `json:"score"`
	Team     struct {
		Abbreviation string `json:"abbreviation"`
		DisplayName  string `json:"displayName"`
	} `json:"team"`
}

// FetchNBAGame looks up the NBA game for teams on date (YYYY-MM-DD) and
// renders the result as evidence text. Lenient matching: if no game contains
// both teams, a single-team match is accepted and the ambiguity shows up in
// the surrounding text rather than failing the lookup.
func (c *ScoreboardClient) FetchNBAGame(ctx context.Context, teams []string, date string) string {
	espnDate := strings.ReplaceAll(date, "-", "")
	url := fmt.Sprintf("%s/apis/site/v2/sports/basketball/nba/scoreboard?dates=%s", c.baseURL, espnDate)

	log.Printf("[ESPN] 🏀 Fetching NBA scores: %s", url)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Sprintf("ESPN lookup unavailable: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Sprintf("ESPN lookup unavailable: %v", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("ESPN API error: %d", resp.StatusCode)
	}

	var data espnScoreboard
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return fmt.Sprintf("ESPN returned unreadable data: %v", err)
	}

	if len(data.Events) == 0 {
		return fmt.Sprintf("No NBA games found for %s", date)
	}

	// Normalize requested team names to ESPN abbreviations
	var teamAbbrs []string
	for _, t := range teams {
		if abbr, ok := nbaTeams[strings.ToLower(strings.TrimSpace(t))]; ok {
			teamAbbrs = append(teamAbbrs, abbr)
		}
	}
	log.Printf("[ESPN] 🔍 Looking for teams %v -> abbrs %v", teams, teamAbbrs)

	for _, event := range data.Events {
		if len(event.Competitions) == 0 {
			continue
		}
		competitors := event.Competitions[0].Competitors

		matchCount := 0
		for _, abbr := range teamAbbrs {
			for _, comp := range competitors {
				if strings.EqualFold(comp.Team.Abbreviation, abbr) {
					matchCount++
					break
				}
			}
		}
		// At least one team matches (be lenient)
		if matchCount < 1 {
			continue
		}

		var home, away *espnCompetitor
		for i := range competitors {
			switch competitors[i].HomeAway {
			case "home":
				home = &competitors[i]
			case "away":
				away = &competitors[i]
			}
		}
		if home == nil || away == nil {
			continue
		}

		if !event.Status.Type.Completed {
			status := event.Status.Type.Detail
			if status == "" {
				status = "In Progress"
			}
			return fmt.Sprintf("Game not yet completed. Status: %s", status)
		}

		homeScore, _ := strconv.Atoi(home.Score)
		awayScore, _ := strconv.Atoi(away.Score)
		winner := home.Team.DisplayName
		if awayScore > homeScore {
			winner = away.Team.DisplayName
		}

		result := fmt.Sprintf(`NBA GAME RESULT (%s):
%s: %s
%s: %s
Status: Final
Winner: %s`, date, away.Team.DisplayName, away.Score, home.Team.DisplayName, home.Score, winner)

		if matchCount < len(teamAbbrs) {
			result += fmt.Sprintf("\nNote: only %d of %d requested teams matched this game.", matchCount, len(teamAbbrs))
		}

		log.Printf("[ESPN] ✅ Found game for %v on %s", teams, date)
		return result
	}

	// No match — list the day's games so the judge can see what did happen
	var games []string
	for _, event := range data.Events {
		if len(event.Competitions) == 0 {
			continue
		}
		var names []string
		for _, comp := range event.Competitions[0].Competitors {
			names = append(names, comp.Team.DisplayName)
		}
		games = append(games, strings.Join(names, " vs "))
	}

	return fmt.Sprintf("Could not find game with teams %s. Games on %s: %s",
		strings.Join(teams, " vs "), date, strings.Join(games, ", "))
}
