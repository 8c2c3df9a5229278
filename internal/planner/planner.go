package planner

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"devicefarm-server/internal/hub"
	"devicefarm-server/internal/model"
	"devicefarm-server/internal/store"
)

// EveryMinute is the planner's cron schedule. Group slots have minute
// resolution, so one tick per minute sees each slot exactly once.
const EveryMinute = "* * * * *"

// Planner turns group schedules into jobs and retires devices that stopped
// sending heartbeats.
type Planner struct {
	store      *store.Store
	hub        *hub.Hub
	now        func() time.Time
	staleAfter time.Duration
	cron       *cron.Cron
}

type Options struct {
	Hub *hub.Hub
	Now func() time.Time
	// StaleAfter is how long a device may go without a heartbeat before it is
	// marked offline. Zero disables the sweep.
	StaleAfter time.Duration
}

// Report summarizes what one tick did.
type Report struct {
	TrainJobs   int
	PublishJobs int
	Offline     int64
}

func New(st *store.Store, opts Options) *Planner {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Planner{
		store:      st,
		hub:        opts.Hub,
		now:        now,
		staleAfter: opts.StaleAfter,
		cron:       cron.New(cron.WithLocation(time.Local)),
	}
}

func (p *Planner) Start() error {
	if _, err := p.cron.AddFunc(EveryMinute, func() {
		p.Tick(context.Background())
	}); err != nil {
		return err
	}
	p.cron.Start()
	log.Printf("planner: started")
	return nil
}

// Stop halts the schedule and waits for a running tick to finish or ctx to
// expire.
func (p *Planner) Stop(ctx context.Context) {
	done := p.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Tick runs one planning pass for the current minute. Errors are logged; one
// failing group does not hold up the others.
func (p *Planner) Tick(ctx context.Context) Report {
	now := p.now()
	var r Report

	groups, err := p.store.ListGroups(ctx)
	if err != nil {
		log.Printf("planner: list groups: %v", err)
	} else {
		for _, g := range groups {
			r.TrainJobs += p.planTraining(ctx, g, now)
			r.PublishJobs += p.planPublishing(ctx, g, now)
		}
	}

	if p.staleAfter > 0 {
		n, err := p.store.MarkStaleDevicesOffline(ctx, now.Add(-p.staleAfter))
		if err != nil {
			log.Printf("planner: stale device sweep: %v", err)
		} else if n > 0 {
			log.Printf("planner: marked %d stale devices offline", n)
			p.hub.Publish(hub.TopicDevice, map[string]any{"offline": n})
			r.Offline = n
		}
	}

	if r.TrainJobs > 0 || r.PublishJobs > 0 {
		log.Printf("planner: created %d train jobs, %d publish jobs", r.TrainJobs, r.PublishJobs)
	}
	return r
}

// dueSlot returns the start time of the first slot in raw that falls on the
// current minute.
func dueSlot(raw string, now time.Time) (string, bool) {
	slots, err := model.ParseSlots(raw)
	if err != nil {
		return "", false
	}
	current := now.Local().Format(model.SlotLayout)
	for _, slot := range slots {
		if slot != current {
			continue
		}
		at, err := model.SlotOn(now, slot)
		if err != nil {
			return "", false
		}
		return model.FormatTime(at), true
	}
	return "", false
}

func enabled(flag *int) bool { return flag != nil && *flag == 1 }

func (p *Planner) planTraining(ctx context.Context, g model.Group, now time.Time) int {
	if !enabled(g.AutoTrain) || g.TrainStartTime == nil {
		return 0
	}
	start, ok := dueSlot(*g.TrainStartTime, now)
	if !ok {
		return 0
	}
	accounts, err := p.store.ListAccountsByGroup(ctx, g.ID)
	if err != nil {
		log.Printf("planner: group %d accounts: %v", g.ID, err)
		return 0
	}

	created := 0
	for _, a := range accounts {
		n, err := p.store.CountTrainJobsForSlot(ctx, a.ID, start)
		if err != nil {
			log.Printf("planner: account %d train slot: %v", a.ID, err)
			continue
		}
		if n > 0 {
			continue
		}
		groupID := g.ID
		startTime := start
		id, err := p.store.SaveTrainJob(ctx, model.TrainJob{AccountID: a.ID, GroupID: &groupID, StartTime: &startTime})
		if err != nil {
			log.Printf("planner: account %d train job: %v", a.ID, err)
			continue
		}
		p.hub.Publish(hub.TopicTrainJob, map[string]any{"action": "created", "id": id})
		created++
	}
	return created
}

func (p *Planner) planPublishing(ctx context.Context, g model.Group, now time.Time) int {
	if !enabled(g.AutoPublish) || g.PublishStartTime == nil {
		return 0
	}
	start, ok := dueSlot(*g.PublishStartTime, now)
	if !ok {
		return 0
	}
	accounts, err := p.store.ListAccountsByGroup(ctx, g.ID)
	if err != nil {
		log.Printf("planner: group %d accounts: %v", g.ID, err)
		return 0
	}

	created := 0
	for _, a := range accounts {
		n, err := p.store.CountPublishJobsForSlot(ctx, a.ID, start)
		if err != nil {
			log.Printf("planner: account %d publish slot: %v", a.ID, err)
			continue
		}
		if n > 0 {
			continue
		}
		m, err := p.store.NextUnusedMaterial(ctx, g.ID)
		if errors.Is(err, store.ErrNotFound) {
			log.Printf("planner: group %d has no unused material left", g.ID)
			return created
		}
		if err != nil {
			log.Printf("planner: group %d material: %v", g.ID, err)
			return created
		}
		groupID := g.ID
		startTime := start
		id, err := p.store.CreatePublishJob(ctx, model.PublishJob{
			GroupID:     &groupID,
			MaterialID:  m.ID,
			AccountID:   a.ID,
			Title:       g.Title,
			Tags:        g.Tags,
			StartTime:   &startTime,
			PublishType: g.PublishType,
			ProductLink: g.ProductLink,
		})
		if err != nil {
			log.Printf("planner: account %d publish job: %v", a.ID, err)
			continue
		}
		p.hub.Publish(hub.TopicPublishJob, map[string]any{"action": "created", "id": id})
		created++
	}
	return created
}
