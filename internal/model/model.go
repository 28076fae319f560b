package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"

	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels lists every table of the recording schema, parents first.
var DatabaseModels = []any{
	&Episode{},
	&Step{},
	&InstanceStatus{},
}

// Episode is one race of one instance.
type Episode struct {
	ID           datatypes.UUID                     `json:"id" gorm:"primaryKey"`
	InstanceID   string                             `json:"instanceId" gorm:"size:64;index:idx_episode_instance"`
	Mode         string                             `json:"mode" gorm:"size:16"`
	Setup        datatypes.JSONType[core.GameSetup] `json:"setup"`
	TrackCode    int                                `json:"trackCode" gorm:"index:idx_episode_track"`
	TrackName    string                             `json:"trackName" gorm:"size:64"`
	StartedAt    time.Time                          `json:"startedAt" gorm:"index:idx_episode_started"`
	EndedAt      *time.Time                         `json:"endedAt"`
	Steps        uint32                             `json:"steps" gorm:"default:0"`
	TimedOut     bool                               `json:"timedOut" gorm:"default:false"`
	RaceFinished bool                               `json:"raceFinished" gorm:"default:false"`
	// Path is the kart trajectory on the ground plane, height in Z.
	Path     geom.LineString `json:"path"`
	Distance float64         `json:"distance" gorm:"default:0"`
}

func (*Episode) TableName() string {
	return "episodes"
}

// Step is one recorded transition.
type Step struct {
	ID        uint                                   `json:"id" gorm:"primarykey;autoIncrement;"`
	EpisodeID datatypes.UUID                         `json:"episodeId" gorm:"index:idx_step_episode"`
	Episode   Episode                                `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:EpisodeID;"`
	Index     uint32                                 `json:"index" gorm:"column:step_index;index:idx_step_index"`
	Time      time.Time                              `json:"time"`
	Telemetry datatypes.JSONType[map[string]float64] `json:"telemetry"`
	Position  geom.Point                             `json:"position"`
	Action    StepAction                             `json:"action" gorm:"embedded;embeddedPrefix:action_"`
}

func (*Step) TableName() string {
	return "steps"
}

// StepAction is the controller command applied after a step.
type StepAction struct {
	Forward  bool    `json:"forward"`
	Backward bool    `json:"backward"`
	X        float32 `json:"x"`
	Y        float32 `json:"y"`
	LookBack bool    `json:"lookBack"`
	Horn     bool    `json:"horn"`
	Drift    bool    `json:"drift"`
}

// InstanceStatus is a periodic health sample of one instance.
type InstanceStatus struct {
	ID                  uint               `json:"id" gorm:"primarykey;autoIncrement;"`
	Time                time.Time          `json:"time" gorm:"index:idx_status_time"`
	InstanceID          string             `json:"instanceId" gorm:"size:64;index:idx_status_instance"`
	Phase               string             `json:"phase" gorm:"size:16"`
	EpisodeID           string             `json:"episodeId" gorm:"size:36"`
	Step                uint32             `json:"step"`
	Episodes            int                `json:"episodes"`
	Recoveries          int                `json:"recoveries"`
	QueueLengths        RecordQueueLengths `json:"queueLengths" gorm:"embedded;embeddedPrefix:queue_"`
	LastWriteDurationMs float32            `json:"lastWriteDurationMs"`
}

func (*InstanceStatus) TableName() string {
	return "instance_statuses"
}

// RecordQueueLengths is the backlog of the recorder: events waiting for the
// recording worker and steps waiting for a batched backend write.
type RecordQueueLengths struct {
	Record  uint16 `json:"record"`
	Backend uint16 `json:"backend"`
	Dropped uint32 `json:"dropped"`
}
