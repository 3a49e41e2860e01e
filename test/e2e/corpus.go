// Package e2e provides end-to-end tests with a large corpus and multiple queries.
package e2e

import (
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/filmdex/internal/models"
)

// E2EMovie is a movie entry in the E2E corpus.
type E2EMovie struct {
	Title    string
	Director string
	Year     int
	Rating   float64
	Synopsis string
}

// QueryTestCase defines a search and the titles that must appear in its results.
type QueryTestCase struct {
	Query          string
	ExpectedTitles []string
	Description    string
}

// Corpus holds movies and query test cases for E2E tests.
type Corpus struct {
	Movies       []E2EMovie
	TestCases    []QueryTestCase
	TotalMovies  int
	TotalQueries int
}

// BuildCorpus returns a corpus of 100 movies and one query test case per signature phrase.
// Each topic carries a signature phrase so queries can assert the right movies come back.
func BuildCorpus() *Corpus {
	movies := buildMovies(100)
	cases := buildQueryTestCases(movies)
	return &Corpus{
		Movies:       movies,
		TestCases:    cases,
		TotalMovies:  len(movies),
		TotalQueries: len(cases),
	}
}

type topic struct {
	title    string
	director string
	year     int
	rating   float64
	phrase   string
	synopsis string
}

var topics = []topic{
	{"Heat", "Michael Mann", 1995, 4.5, "bank heist", "A bank heist crew is hunted by an obsessive detective."},
	{"Alien", "Ridley Scott", 1979, 4.5, "xenomorph stowaway", "A xenomorph stowaway stalks the crew of a towing ship."},
	{"Jaws", "Steven Spielberg", 1975, 4.25, "great white", "A great white shark terrorizes a beach town."},
	{"Vertigo", "Alfred Hitchcock", 1958, 4.5, "acrophobic detective", "An acrophobic detective becomes obsessed with a woman."},
	{"Psycho", "Alfred Hitchcock", 1960, 4.5, "roadside motel", "A secretary on the run stops at a roadside motel."},
	{"Arrival", "Denis Villeneuve", 2016, 4.25, "heptapod language", "A linguist deciphers the heptapod language."},
	{"Sicario", "Denis Villeneuve", 2015, 4.0, "cartel task force", "An agent joins a cartel task force on the border."},
	{"Fargo", "Joel Coen", 1996, 4.25, "kidnapping scheme", "A car salesman hires thugs for a kidnapping scheme."},
	{"Amadeus", "Milos Forman", 1984, 4.5, "jealous composer", "A jealous composer recounts his rivalry with Mozart."},
	{"Chinatown", "Roman Polanski", 1974, 4.5, "water conspiracy", "A private eye uncovers a water conspiracy in Los Angeles."},
	{"Rocky", "John G. Avildsen", 1976, 4.0, "underdog boxer", "An underdog boxer gets a shot at the title."},
	{"Ronin", "John Frankenheimer", 1998, 3.5, "mysterious briefcase", "Mercenaries chase a mysterious briefcase across France."},
	{"Seven", "David Fincher", 1995, 4.25, "deadly sins", "Two detectives hunt a killer themed on the deadly sins."},
	{"Zodiac", "David Fincher", 2007, 4.0, "cipher letters", "A cartoonist obsesses over the killer's cipher letters."},
	{"Memento", "Christopher Nolan", 2000, 4.25, "anterograde amnesia", "A man with anterograde amnesia hunts his wife's killer."},
	{"Inception", "Christopher Nolan", 2010, 4.5, "dream infiltration", "A thief performs dream infiltration to plant an idea."},
	{"Interstellar", "Christopher Nolan", 2014, 4.25, "wormhole expedition", "Astronauts join a wormhole expedition to save humanity."},
	{"Gravity", "Alfonso Cuaron", 2013, 4.0, "orbital debris", "Orbital debris strands two astronauts."},
	{"Roma", "Alfonso Cuaron", 2018, 4.0, "housekeeper", "A year in the life of a housekeeper in Mexico City."},
	{"Parasite", "Bong Joon-ho", 2019, 4.5, "semi-basement", "A family in a semi-basement infiltrates a rich household."},
	{"Okja", "Bong Joon-ho", 2017, 3.75, "superpig", "A girl fights to save her superpig from a corporation."},
	{"Oldboy", "Park Chan-wook", 2003, 4.25, "imprisoned fifteen", "A man imprisoned fifteen years seeks his captor."},
	{"Rashomon", "Akira Kurosawa", 1950, 4.25, "conflicting testimonies", "Conflicting testimonies describe a samurai's death."},
	{"Ikiru", "Akira Kurosawa", 1952, 4.5, "terminal bureaucrat", "A terminal bureaucrat searches for meaning."},
	{"Stalker", "Andrei Tarkovsky", 1979, 4.25, "forbidden zone", "A guide leads two men into a forbidden zone."},
	{"Solaris", "Andrei Tarkovsky", 1972, 4.0, "sentient ocean", "A psychologist studies a sentient ocean planet."},
	{"Metropolis", "Fritz Lang", 1927, 4.25, "machine-man", "A machine-man double sows unrest among workers."},
	{"Casablanca", "Michael Curtiz", 1942, 4.5, "letters of transit", "A nightclub owner holds letters of transit."},
	{"Goodfellas", "Martin Scorsese", 1990, 4.5, "mob informant", "The rise of a mob informant in New York."},
	{"Taxi Driver", "Martin Scorsese", 1976, 4.25, "insomniac veteran", "An insomniac veteran drives a cab at night."},
	{"Amelie", "Jean-Pierre Jeunet", 2001, 4.25, "montmartre waitress", "A shy montmartre waitress meddles in lives."},
	{"Drive", "Nicolas Winding Refn", 2011, 4.0, "getaway driver", "A stunt man moonlights as a getaway driver."},
	{"Her", "Spike Jonze", 2013, 4.0, "operating system", "A writer falls for an operating system."},
	{"Moon", "Duncan Jones", 2009, 4.0, "helium-3", "A lone worker mines helium-3 on the far side."},
	{"Whiplash", "Damien Chazelle", 2014, 4.25, "jazz drummer", "A jazz drummer endures an abusive instructor."},
	{"Gattaca", "Andrew Niccol", 1997, 4.0, "genetic discrimination", "A man defies genetic discrimination to reach space."},
	{"Brazil", "Terry Gilliam", 1985, 4.0, "bureaucratic dystopia", "A clerk dreams his way out of a bureaucratic dystopia."},
	{"Network", "Sidney Lumet", 1976, 4.0, "anchorman", "An anchorman's breakdown becomes prime time."},
	{"Rear Window", "Alfred Hitchcock", 1954, 4.5, "courtyard neighbors", "A photographer spies on courtyard neighbors."},
	{"The Thing", "John Carpenter", 1982, 4.25, "antarctic shapeshifter", "An antarctic shapeshifter infiltrates a research station."},
	{"Halloween", "John Carpenter", 1978, 4.0, "masked babysitter", "A masked killer stalks a babysitter on one night."},
	{"Aliens", "James Cameron", 1986, 4.25, "colonial marines", "Colonial marines answer a distress call."},
	{"Titanic", "James Cameron", 1997, 4.0, "iceberg", "Lovers meet aboard a ship doomed by an iceberg."},
	{"Blade Runner", "Ridley Scott", 1982, 4.25, "replicant hunter", "A replicant hunter pursues rogue androids."},
	{"Gladiator", "Ridley Scott", 2000, 4.25, "betrayed general", "A betrayed general fights as a gladiator."},
	{"Nosferatu", "F. W. Murnau", 1922, 4.0, "vampire count", "A vampire count brings plague to a German town."},
	{"Spirited Away", "Hayao Miyazaki", 2001, 4.5, "bathhouse spirits", "A girl works among bathhouse spirits."},
	{"Totoro", "Hayao Miyazaki", 1988, 4.5, "forest spirit", "Two sisters befriend a forest spirit."},
	{"Akira", "Katsuhiro Otomo", 1988, 4.0, "psychic biker", "A psychic biker tears Neo-Tokyo apart."},
	{"Ran", "Akira Kurosawa", 1985, 4.25, "warlord sons", "An aging warlord divides his realm among sons."},
}

func buildMovies(n int) []E2EMovie {
	out := make([]E2EMovie, 0, n)
	for i := 0; i < n; i++ {
		t := topics[i%len(topics)]
		title := t.title
		// Past the first pass, duplicate topics under distinct titles
		if i >= len(topics) {
			title = fmt.Sprintf("%s (%d)", t.title, i+1)
		}
		out = append(out, E2EMovie{
			Title:    title,
			Director: t.director,
			Year:     t.year,
			Rating:   t.rating,
			Synopsis: t.synopsis,
		})
	}
	return out
}

func buildQueryTestCases(movies []E2EMovie) []QueryTestCase {
	if len(movies) == 0 {
		return nil
	}
	var cases []QueryTestCase
	for _, t := range topics {
		var expected []string
		for _, m := range movies {
			if containsPhrase(m, t.phrase) {
				expected = append(expected, m.Title)
			}
		}
		if len(expected) == 0 {
			continue
		}
		cases = append(cases, QueryTestCase{
			Query:          t.phrase,
			ExpectedTitles: expected,
			Description:    fmt.Sprintf("query %q should return %s", t.phrase, t.title),
		})
	}
	return cases
}

func containsPhrase(m E2EMovie, phrase string) bool {
	phrase = strings.ToLower(phrase)
	return strings.Contains(strings.ToLower(m.Title), phrase) ||
		strings.Contains(strings.ToLower(m.Synopsis), phrase)
}

// ToMovieInputs converts the corpus movies to create requests.
func (c *Corpus) ToMovieInputs() []*models.MovieInput {
	out := make([]*models.MovieInput, len(c.Movies))
	for i := range c.Movies {
		out[i] = c.Movies[i].Input()
	}
	return out
}

// Input returns the create request for m.
func (m E2EMovie) Input() *models.MovieInput {
	director, synopsis, rating := m.Director, m.Synopsis, m.Rating
	released := models.NewDate(m.Year, time.January, 1)
	return &models.MovieInput{
		Title:       m.Title,
		Director:    &director,
		Synopsis:    &synopsis,
		Rating:      &rating,
		ReleaseDate: &released,
	}
}
