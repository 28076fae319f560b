// pkg/core/setup.go
package core

import (
	"errors"
	"fmt"
)

// ErrUnknownSetupKey is returned for a configuration key outside GameSetup.
var ErrUnknownSetupKey = errors.New("unknown setup key")

// SetupKey names one GameSetup field on the wire.
type SetupKey string

const (
	SetupMainMode            SetupKey = "MAIN_MODE"
	SetupGameMode            SetupKey = "GAME_MODE"
	SetupPlayer              SetupKey = "PLAYER"
	SetupPlayerVariant       SetupKey = "PLAYER_VARIANT"
	SetupCarBody             SetupKey = "CAR_BODY"
	SetupCarWheel            SetupKey = "CAR_WHEEL"
	SetupCarWing             SetupKey = "CAR_WING"
	SetupRaceRuleMode        SetupKey = "RACE_RULE_MODE"
	SetupRaceRuleTeams       SetupKey = "RACE_RULE_TEAMS"
	SetupRaceRuleItems       SetupKey = "RACE_RULE_ITEMS"
	SetupRaceRuleCOM         SetupKey = "RACE_RULE_COM"
	SetupRaceRuleCOMVehicles SetupKey = "RACE_RULE_COM_VEHICLES"
	SetupRaceRuleCourses     SetupKey = "RACE_RULE_COURSES"
	SetupRaceRuleRaceCount   SetupKey = "RACE_RULE_RACE_COUNT"
	SetupCourseCup           SetupKey = "COURSE_CUP"
	SetupCourse              SetupKey = "COURSE"
	SetupMaxStep             SetupKey = "MAX_STEP"
)

// SetupKeys lists every key in wire order.
var SetupKeys = []SetupKey{
	SetupMainMode, SetupGameMode, SetupPlayer, SetupPlayerVariant,
	SetupCarBody, SetupCarWheel, SetupCarWing,
	SetupRaceRuleMode, SetupRaceRuleTeams, SetupRaceRuleItems, SetupRaceRuleCOM,
	SetupRaceRuleCOMVehicles, SetupRaceRuleCourses, SetupRaceRuleRaceCount,
	SetupCourseCup, SetupCourse, SetupMaxStep,
}

// CoursesChoose is the RACE_RULE_COURSES value where the player picks the track.
const CoursesChoose = 0

// GameSetup is the full desired configuration for the next race. It is a
// plain value: episodes work on a copy taken at episode start.
type GameSetup struct {
	MainMode            int32 `json:"MAIN_MODE" mapstructure:"MAIN_MODE"`
	GameMode            int32 `json:"GAME_MODE" mapstructure:"GAME_MODE"`
	Player              int32 `json:"PLAYER" mapstructure:"PLAYER"`
	PlayerVariant       int32 `json:"PLAYER_VARIANT" mapstructure:"PLAYER_VARIANT"`
	CarBody             int32 `json:"CAR_BODY" mapstructure:"CAR_BODY"`
	CarWheel            int32 `json:"CAR_WHEEL" mapstructure:"CAR_WHEEL"`
	CarWing             int32 `json:"CAR_WING" mapstructure:"CAR_WING"`
	RaceRuleMode        int32 `json:"RACE_RULE_MODE" mapstructure:"RACE_RULE_MODE"`
	RaceRuleTeams       int32 `json:"RACE_RULE_TEAMS" mapstructure:"RACE_RULE_TEAMS"`
	RaceRuleItems       int32 `json:"RACE_RULE_ITEMS" mapstructure:"RACE_RULE_ITEMS"`
	RaceRuleCOM         int32 `json:"RACE_RULE_COM" mapstructure:"RACE_RULE_COM"`
	RaceRuleCOMVehicles int32 `json:"RACE_RULE_COM_VEHICLES" mapstructure:"RACE_RULE_COM_VEHICLES"`
	RaceRuleCourses     int32 `json:"RACE_RULE_COURSES" mapstructure:"RACE_RULE_COURSES"`
	RaceRuleRaceCount   int32 `json:"RACE_RULE_RACE_COUNT" mapstructure:"RACE_RULE_RACE_COUNT"`
	CourseCup           int32 `json:"COURSE_CUP" mapstructure:"COURSE_CUP"`
	Course              int32 `json:"COURSE" mapstructure:"COURSE"`
	MaxStep             int32 `json:"MAX_STEP" mapstructure:"MAX_STEP"`
}

// DefaultGameSetup returns a 150cc frantic VS race on Rainbow Road (Special cup).
func DefaultGameSetup() GameSetup {
	return GameSetup{
		MainMode:            0,
		GameMode:            2,
		Player:              10,
		PlayerVariant:       0,
		CarBody:             9,
		CarWheel:            2,
		CarWing:             1,
		RaceRuleMode:        2,
		RaceRuleTeams:       1,
		RaceRuleItems:       8,
		RaceRuleCOM:         3,
		RaceRuleCOMVehicles: 1,
		RaceRuleCourses:     CoursesChoose,
		RaceRuleRaceCount:   0,
		CourseCup:           3,
		Course:              15,
		MaxStep:             1600,
	}
}

func (g *GameSetup) field(key SetupKey) (*int32, error) {
	switch key {
	case SetupMainMode:
		return &g.MainMode, nil
	case SetupGameMode:
		return &g.GameMode, nil
	case SetupPlayer:
		return &g.Player, nil
	case SetupPlayerVariant:
		return &g.PlayerVariant, nil
	case SetupCarBody:
		return &g.CarBody, nil
	case SetupCarWheel:
		return &g.CarWheel, nil
	case SetupCarWing:
		return &g.CarWing, nil
	case SetupRaceRuleMode:
		return &g.RaceRuleMode, nil
	case SetupRaceRuleTeams:
		return &g.RaceRuleTeams, nil
	case SetupRaceRuleItems:
		return &g.RaceRuleItems, nil
	case SetupRaceRuleCOM:
		return &g.RaceRuleCOM, nil
	case SetupRaceRuleCOMVehicles:
		return &g.RaceRuleCOMVehicles, nil
	case SetupRaceRuleCourses:
		return &g.RaceRuleCourses, nil
	case SetupRaceRuleRaceCount:
		return &g.RaceRuleRaceCount, nil
	case SetupCourseCup:
		return &g.CourseCup, nil
	case SetupCourse:
		return &g.Course, nil
	case SetupMaxStep:
		return &g.MaxStep, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSetupKey, key)
}

// Get returns the value stored under key.
func (g GameSetup) Get(key SetupKey) (int32, error) {
	p, err := g.field(key)
	if err != nil {
		return 0, err
	}
	return *p, nil
}

// Set stores v under key.
func (g *GameSetup) Set(key SetupKey, v int32) error {
	p, err := g.field(key)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// CarPart returns the desired part for car menu item 0..2.
func (g GameSetup) CarPart(item int) (int32, bool) {
	switch item {
	case 0:
		return g.CarBody, true
	case 1:
		return g.CarWheel, true
	case 2:
		return g.CarWing, true
	}
	return 0, false
}

// RaceRule returns the desired rule value for rule menu item 0..6.
func (g GameSetup) RaceRule(item int) (int32, bool) {
	switch item {
	case 0:
		return g.RaceRuleMode, true
	case 1:
		return g.RaceRuleTeams, true
	case 2:
		return g.RaceRuleItems, true
	case 3:
		return g.RaceRuleCOM, true
	case 4:
		return g.RaceRuleCOMVehicles, true
	case 5:
		return g.RaceRuleCourses, true
	case 6:
		return g.RaceRuleRaceCount, true
	}
	return 0, false
}
