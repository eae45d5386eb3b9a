package pipeline_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/freewebtopdf/filesentry/internal/domain"
	"github.com/freewebtopdf/filesentry/internal/engine"
	"github.com/freewebtopdf/filesentry/internal/notify"
	"github.com/freewebtopdf/filesentry/internal/pipeline"
	"github.com/freewebtopdf/filesentry/internal/storage"
)

type recordingNotifier struct {
	mu      sync.Mutex
	name    string
	err     error
	matches []domain.RuleMatch
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) Notify(ctx context.Context, match domain.RuleMatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches = append(r.matches, match)
	return r.err
}

func (r *recordingNotifier) received() []domain.RuleMatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.RuleMatch(nil), r.matches...)
}

type panickyEvaluator struct {
	inner pipeline.Evaluator
	path  string
}

func (p panickyEvaluator) EvaluateEvent(ctx context.Context, event domain.FileEvent) []domain.RuleMatch {
	if event.Path == p.path {
		panic("evaluation blew up")
	}
	return p.inner.EvaluateEvent(ctx, event)
}

type countingObserver struct {
	mu       sync.Mutex
	panics   int
	failures map[string]int
}

func (c *countingObserver) ObservePanic() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.panics++
}

func (c *countingObserver) ObserveNotifyFailure(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failures == nil {
		c.failures = map[string]int{}
	}
	c.failures[name]++
}

var _ = Describe("Dispatcher", func() {
	var (
		ctx       context.Context
		store     *storage.Store
		eng       *engine.Engine
		notifier  *recordingNotifier
		observer  *countingObserver
		rulesPath string
	)

	BeforeEach(func() {
		ctx = context.Background()
		rulesPath = filepath.Join(GinkgoT().TempDir(), "rules.json")
		store = storage.NewStore(rulesPath)
		Expect(store.Load(ctx)).To(Succeed())
		DeferCleanup(func() { _ = store.Close(context.Background()) })

		eng = engine.New(store)
		notifier = &recordingNotifier{name: "recording"}
		observer = &countingObserver{}
	})

	Describe("pattern rules", func() {
		var rule *domain.Rule

		BeforeEach(func() {
			var err error
			rule, err = store.AddRule(ctx, domain.RuleInput{
				Condition: "alert when a TypeScript file is created in src/",
				Compiled: domain.CompiledRule{
					Type: domain.RuleTypePattern,
					Match: domain.MatchFilter{
						PathIncludes: []string{"src/"},
						Extensions:   []string{".ts"},
						EventTypes:   []domain.EventType{domain.EventCreated},
					},
				},
				Source: domain.SourceLLM,
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("notifies matching events and persists the match", func() {
			d := pipeline.New(eng, []notify.Notifier{notifier})

			matches, err := d.Dispatch(ctx, domain.FileEvent{Type: domain.EventCreated, Path: "src/app.ts", Timestamp: 1000})
			Expect(err).NotTo(HaveOccurred())
			Expect(matches).To(HaveLen(1))
			Expect(notifier.received()).To(HaveLen(1))
			Expect(notifier.received()[0].Reason).To(Equal("File src/app.ts was created"))

			Expect(store.Flush(ctx)).To(Succeed())
			reloaded := storage.NewStore(rulesPath)
			DeferCleanup(func() { _ = reloaded.Close(context.Background()) })
			Expect(reloaded.Load(ctx)).To(Succeed())

			persisted, err := reloaded.GetRule(ctx, rule.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(persisted.MatchCount).To(Equal(1))
			Expect(*persisted.LastMatched).To(Equal(int64(1000)))
		})

		It("stays quiet for non-matching events", func() {
			d := pipeline.New(eng, []notify.Notifier{notifier})

			_, _ = d.Dispatch(ctx, domain.FileEvent{Type: domain.EventModified, Path: "src/app.ts", Timestamp: 1})
			_, _ = d.Dispatch(ctx, domain.FileEvent{Type: domain.EventCreated, Path: "lib/app.ts", Timestamp: 2})

			Expect(notifier.received()).To(BeEmpty())
			Expect(d.Stats().Processed).To(Equal(int64(2)))
		})

		It("keeps notifying the remaining notifiers when one fails", func() {
			failing := &recordingNotifier{name: "failing", err: errors.New("unreachable")}
			d := pipeline.New(eng, []notify.Notifier{failing, notifier}, pipeline.WithObserver(observer))

			_, err := d.Dispatch(ctx, domain.FileEvent{Type: domain.EventCreated, Path: "src/a.ts", Timestamp: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(notifier.received()).To(HaveLen(1))
			Expect(d.Stats().NotifyFailures).To(Equal(int64(1)))
			Expect(observer.failures).To(HaveKeyWithValue("failing", 1))
		})
	})

	Describe("threshold rules", func() {
		BeforeEach(func() {
			_, err := store.AddRule(ctx, domain.RuleInput{
				Condition: "3 or more log changes within 1 minute",
				Compiled: domain.CompiledRule{
					Type:          domain.RuleTypeThreshold,
					Match:         domain.MatchFilter{Extensions: []string{".log"}},
					WindowSeconds: domain.IntPtr(60),
					Count:         domain.IntPtr(3),
				},
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("fires on the third event and needs a fresh burst afterwards", func() {
			d := pipeline.New(eng, []notify.Notifier{notifier})

			for i := int64(1); i <= 5; i++ {
				_, err := d.Dispatch(ctx, domain.FileEvent{Type: domain.EventModified, Path: "logs/app.log", Timestamp: i * 1000})
				Expect(err).NotTo(HaveOccurred())
			}

			Expect(notifier.received()).To(HaveLen(1))
			Expect(*notifier.received()[0].Count).To(Equal(3))

			_, _ = d.Dispatch(ctx, domain.FileEvent{Type: domain.EventModified, Path: "logs/app.log", Timestamp: 6000})
			Expect(notifier.received()).To(HaveLen(2))
		})
	})

	Describe("failure isolation", func() {
		It("recovers a panicking event and processes the next one", func() {
			_, err := store.AddRule(ctx, domain.RuleInput{
				Condition: "any markdown change",
				Compiled:  domain.CompiledRule{Type: domain.RuleTypePattern, Match: domain.MatchFilter{Extensions: []string{".md"}}},
			})
			Expect(err).NotTo(HaveOccurred())

			d := pipeline.New(panickyEvaluator{inner: eng, path: "boom.md"}, []notify.Notifier{notifier}, pipeline.WithObserver(observer))

			_, err = d.Dispatch(ctx, domain.FileEvent{Type: domain.EventCreated, Path: "boom.md", Timestamp: 1})
			Expect(err).To(HaveOccurred())

			matches, err := d.Dispatch(ctx, domain.FileEvent{Type: domain.EventCreated, Path: "README.md", Timestamp: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(matches).To(HaveLen(1))
			Expect(d.Stats().Panics).To(Equal(int64(1)))
			Expect(observer.panics).To(Equal(1))
		})
	})

	Describe("Run", func() {
		It("drains the event stream until it is closed", func() {
			_, err := store.AddRule(ctx, domain.RuleInput{
				Condition: "go files",
				Compiled:  domain.CompiledRule{Type: domain.RuleTypePattern, Match: domain.MatchFilter{Extensions: []string{".go"}}},
			})
			Expect(err).NotTo(HaveOccurred())

			events := make(chan domain.FileEvent, 3)
			events <- domain.FileEvent{Type: domain.EventCreated, Path: "a.go", Timestamp: 1}
			events <- domain.FileEvent{Type: domain.EventCreated, Path: "b.txt", Timestamp: 2}
			events <- domain.FileEvent{Type: domain.EventDeleted, Path: "c.go", Timestamp: 3}
			close(events)

			d := pipeline.New(eng, []notify.Notifier{notifier})
			Expect(d.Run(ctx, events)).To(Succeed())

			received := notifier.received()
			Expect(received).To(HaveLen(2))
			Expect(received[0].Path).To(Equal("a.go"))
			Expect(received[1].Path).To(Equal("c.go"))
			Expect(eng.GetStats().EventsObserved).To(Equal(int64(3)))
		})

		It("stops when the context is cancelled", func() {
			runCtx, cancel := context.WithCancel(ctx)
			events := make(chan domain.FileEvent)
			done := make(chan error, 1)

			d := pipeline.New(eng, nil)
			go func() { done <- d.Run(runCtx, events) }()
			cancel()

			Eventually(done, time.Second).Should(Receive(MatchError(context.Canceled)))
		})
	})
})
