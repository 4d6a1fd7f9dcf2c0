package client

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/okian/crudapp/internal/domain/model"
	"github.com/okian/crudapp/pkg/logger"
)

var (
	firstNames = []string{"Ada", "Alan", "Barbara", "Claude", "Donald", "Edsger", "Frances", "Grace", "John", "Ken", "Margaret", "Niklaus", "Radia", "Tony"}
	lastNames  = []string{"Allen", "Backus", "Dijkstra", "Hamilton", "Hoare", "Hopper", "Knuth", "Liskov", "Lovelace", "Perlman", "Ritchie", "Shannon", "Thompson", "Turing", "Wirth"}
	streets    = []string{"Main St", "Oak Ave", "Maple Dr", "Cedar Ln", "Pine Rd", "Elm St"}
	cities     = []string{"Springfield", "Riverside", "Franklin", "Greenville", "Madison", "Salem"}
	states     = []string{"AL", "CA", "IL", "MA", "NY", "OR", "TX", "WA"}
)

// SeedResult tallies the outcome of a Seed run.
type SeedResult struct {
	Created   int64 `json:"created"`
	Duplicate int64 `json:"duplicate"`
	Failed    int64 `json:"failed"`
}

// Total returns the number of requests that were answered or failed.
func (r SeedResult) Total() int64 {
	return r.Created + r.Duplicate + r.Failed
}

// RandomPerson returns a valid person with random field values.
func RandomPerson(r *rand.Rand) model.Person {
	first := firstNames[r.IntN(len(firstNames))]
	last := lastNames[r.IntN(len(lastNames))]
	return model.Person{
		FirstName:     first,
		LastName:      last,
		EmailAddress:  fmt.Sprintf("%s.%s%d@example.com", strings.ToLower(first), strings.ToLower(last), r.IntN(1000)),
		StreetAddress: fmt.Sprintf("%d %s", 1+r.IntN(9999), streets[r.IntN(len(streets))]),
		City:          cities[r.IntN(len(cities))],
		State:         states[r.IntN(len(states))],
		ZipCode:       fmt.Sprintf("%05d", r.IntN(100000)),
	}
}

// Seed creates n random persons using workers concurrent requests. Every
// request carries its own idempotency key. Seed stops early when ctx is done
// and returns the tally so far along with ctx.Err().
func (c *Client) Seed(ctx context.Context, n, workers int) (SeedResult, error) {
	if n < 1 {
		return SeedResult{}, nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	log := logger.Get().Named("seed")
	log.Info(ctx, "seeding persons", logger.Int("count", n), logger.Int("workers", workers), logger.String("url", c.baseURL))

	var created, duplicate, failed atomic.Int64
	jobs := make(chan model.Person, workers*2)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				res, err := c.Create(ctx, p, uuid.NewString())
				switch {
				case err != nil:
					failed.Add(1)
					log.Debug(ctx, "seed create failed", logger.Error(err))
				case res.Duplicate:
					duplicate.Add(1)
				default:
					created.Add(1)
				}
			}
		}()
	}

	r := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // test data
	var err error
produce:
	for i := 0; i < n; i++ {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break produce
		case jobs <- RandomPerson(r):
		}
	}
	close(jobs)
	wg.Wait()

	res := SeedResult{Created: created.Load(), Duplicate: duplicate.Load(), Failed: failed.Load()}
	log.Info(ctx, "seeding completed",
		logger.Int64("created", res.Created),
		logger.Int64("duplicate", res.Duplicate),
		logger.Int64("failed", res.Failed),
	)
	return res, err
}
