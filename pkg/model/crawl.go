package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrTransientFetch    = goerr.New("transient fetch failure")
	ErrInvalidCredential = goerr.New("invalid access token")
	ErrAccessDenied      = goerr.New("access denied")
	ErrMalformedFragment = goerr.New("malformed fragment")
	ErrSuperseded        = goerr.New("run superseded")
	ErrInvalidRunState   = goerr.New("invalid run state")
	ErrInvalidOption     = goerr.New("invalid crawl option")
)

// CuratorExchangeProject is the project where curators collect problem profiles.
const CuratorExchangeProject int64 = 10985

type Project struct {
	ID   int64  `json:"id" firestore:"id"`
	Name string `json:"name" firestore:"name"`
}

// Match is a profile flagged during a match-mode crawl.
type Match struct {
	ID       ProfileID `json:"id" firestore:"id"`
	Relation string    `json:"relation" firestore:"relation"`
	Name     string    `json:"name" firestore:"name"`
	Message  Message   `json:"message,omitempty" firestore:"message"`
	Projects []Project `json:"projects,omitempty" firestore:"projects"`
}

// GenCount is the expected-parent statistics of one generation.
type GenCount struct {
	Count       int    `json:"count" firestore:"count"`
	MasterCount int    `json:"mpcount" firestore:"mpcount"`
	Label       string `json:"label" firestore:"label"`
}

type RunState string

const (
	RunStateIdle      RunState = "idle"
	RunStateRunning   RunState = "running"
	RunStateStopped   RunState = "stopped"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
)

func (s RunState) Validate() error {
	switch s {
	case RunStateIdle, RunStateRunning, RunStateStopped, RunStateCompleted, RunStateFailed:
		return nil
	default:
		return goerr.Wrap(ErrInvalidRunState, "unknown run state", goerr.V("state", s))
	}
}

// Terminal reports whether no further transition happens without a new start.
func (s RunState) Terminal() bool {
	return s == RunStateStopped || s == RunStateCompleted || s == RunStateFailed
}

// RunToken identifies the active crawl of a session.
type RunToken string

func NewRunToken() RunToken {
	return RunToken(uuid.NewString())
}

// Status is what a caller polls while a crawl is in progress.
type Status struct {
	State      RunState `json:"state" firestore:"state"`
	Running    bool     `json:"running" firestore:"running"`
	Generation int      `json:"generation" firestore:"generation"`
	Stage      string   `json:"stage" firestore:"stage"`
	MatchCount int      `json:"match_count" firestore:"match_count"`
	Hits       int      `json:"hits" firestore:"hits"`

	Count           int `json:"count" firestore:"count"`
	MasterCount     int `json:"mpcount" firestore:"mpcount"`
	Pending         int `json:"pending" firestore:"pending"`
	ParentConflicts int `json:"pconflict" firestore:"pconflict"`
	Problems        int `json:"problems" firestore:"problems"`

	AccessError bool        `json:"access_error" firestore:"access_error"`
	Unresolved  []ProfileID `json:"unresolved,omitempty" firestore:"unresolved"`
	Error       string      `json:"error,omitempty" firestore:"error"`

	TreeGeneration int `json:"tree_generation" firestore:"tree_generation"`
	TreeCount      int `json:"tree_count" firestore:"tree_count"`

	GenCounts map[int]GenCount `json:"gen_counts,omitempty" firestore:"-"`
}

// Snapshot is the persisted result of a finished run.
type Snapshot struct {
	SessionID  string          `json:"session_id" firestore:"session_id"`
	Root       ProfileID       `json:"root" firestore:"root"`
	Mode       string          `json:"mode" firestore:"mode"`
	Status     Status          `json:"status" firestore:"status"`
	GenCounts  []GenCount      `json:"gen_counts,omitempty" firestore:"gen_counts"`
	Matches    []Match         `json:"matches,omitempty" firestore:"matches"`
	Tree       json.RawMessage `json:"tree,omitempty" firestore:"-"`
	TreeJSON   string          `json:"-" firestore:"tree"`
	FinishedAt time.Time       `json:"finished_at" firestore:"finished_at"`
}
