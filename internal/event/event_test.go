package event_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/victornm/proctorquiz/internal/event"
)

func TestBus_PublishSubscribe(t *testing.T) {
	type (
		inputs struct {
			published   []event.Event
			subscribers []subscriber
		}

		outputs struct {
			received map[string][]event.Event
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"a subscriber should only receive events it subscribed to": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("attempt.completed"),
						eventWithName("leaderboard.updated"),
					},
					subscribers: []subscriber{
						{
							name:        "s1",
							subscribeTo: []string{"attempt.completed"},
						},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{eventWithName("attempt.completed")}, out.received["s1"])
			},
		},

		"repeated events should all be dispatched": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("attempt.completed"),
						eventWithName("attempt.completed"),
						eventWithName("attempt.completed"),
					},
					subscribers: []subscriber{
						{
							name:        "s1",
							subscribeTo: []string{"attempt.completed"},
						},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.Len(t, out.received["s1"], 3)
			},
		},

		"an event should fan out to every subscriber": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("leaderboard.updated"),
					},
					subscribers: []subscriber{
						{
							name:        "s1",
							subscribeTo: []string{"leaderboard.updated"},
						},
						{
							name:        "s2",
							subscribeTo: []string{"leaderboard.updated"},
						},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{eventWithName("leaderboard.updated")}, out.received["s1"])
				assert.ElementsMatch(t, []event.Event{eventWithName("leaderboard.updated")}, out.received["s2"])
			},
		},

		"a subscriber to multiple events should receive each": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("attempt.completed"),
						eventWithName("leaderboard.updated"),
						eventWithName("attempt.completed"),
					},
					subscribers: []subscriber{
						{
							name:        "s1",
							subscribeTo: []string{"attempt.completed", "leaderboard.updated"},
						},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{
					eventWithName("attempt.completed"),
					eventWithName("attempt.completed"),
					eventWithName("leaderboard.updated"),
				}, out.received["s1"])
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()
			mu := sync.Mutex{}
			out := outputs{received: make(map[string][]event.Event)}

			b := event.NewBus()
			for _, s := range in.subscribers {
				s := s
				for _, e := range s.subscribeTo {
					b.Subscribe(e, func(ctx context.Context, e event.Event) error {
						mu.Lock()
						out.received[s.name] = append(out.received[s.name], e)
						mu.Unlock()
						return nil
					})
				}
			}

			for _, e := range in.published {
				b.Publish(context.Background(), e)
			}
			b.Stop()

			tt.assert(t, out)
		})
	}
}

type eventWithName string

func (e eventWithName) Name() string {
	return string(e)
}

type subscriber struct {
	name        string
	subscribeTo []string
}
