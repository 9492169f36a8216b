package bot

import (
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"wabot/pkg/logger"
	"wabot/pkg/state"
	"wabot/pkg/storage"
)

// scheduler owns the recurring jobs: daily counter reset at midnight,
// keep-alive self-ping and the storage write-behind flush.
type scheduler struct {
	cron        *cron.Cron
	st          *state.State
	store       storage.Store
	externalURL string
	httpClient  *http.Client
	log         *logger.Logger
}

func newScheduler(st *state.State, store storage.Store, externalURL string) *scheduler {
	return &scheduler{
		cron:        cron.New(),
		st:          st,
		store:       store,
		externalURL: externalURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		log:         logger.Get().Component("scheduler"),
	}
}

func (s *scheduler) start() {
	s.cron.AddFunc("0 0 * * *", s.resetDaily)
	s.cron.AddFunc("*/5 * * * *", s.flush)
	if s.externalURL != "" {
		s.cron.AddFunc("*/10 * * * *", s.selfPing)
	}
	s.cron.Start()
}

func (s *scheduler) stop() {
	s.cron.Stop()
}

func (s *scheduler) resetDaily() {
	s.st.ResetDaily()
	s.st.Activity().Record(state.ActivityInfo, "daily command counter reset")
	s.log.InfoWith("daily counter reset")
}

// selfPing keeps free-tier hosts from idling the process out.
func (s *scheduler) selfPing() {
	resp, err := s.httpClient.Get(s.externalURL + "/health")
	if err != nil {
		s.log.WarnWith("self-ping failed", "url", s.externalURL, "error", err)
		return
	}
	resp.Body.Close()
	s.log.DebugWith("self-ping ok", "status", resp.StatusCode)
}

// flush mirrors the registry and counters into storage. The two writes
// are independent so one failing backend call cannot starve the other.
func (s *scheduler) flush() {
	if err := s.store.SaveUsers(s.st.Users()); err != nil {
		s.log.WarnWith("periodic user flush failed", "error", err)
	}
	if err := s.store.SaveTotalCommands(s.st.Snapshot().TotalCommands); err != nil {
		s.log.WarnWith("periodic counter flush failed", "error", err)
	}
}
