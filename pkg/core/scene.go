// pkg/core/scene.go
package core

import "fmt"

// Scene is the coarse game screen, plus the internal navigation states.
type Scene int

const (
	SceneUnknown Scene = iota
	SceneTitleScreen
	SceneMainMenu
	SceneLoading
	SceneRace
	SceneRaceAfterPause
	SceneSoloMenu
	ScenePrizeCC
	ScenePlayerSelection
	ScenePlayerAltSelection
	SceneCarSelection
	ScenePrizeTrackSelection
	SceneGoValidation
	SceneRaceRuleSelection
	SceneRaceTrackSelection
	SceneCinematicIntroRace
	ScenePauseMenu
	SceneQuitValidation
	SceneRaceResult
	SceneRaceEndMenu

	// internal navigation states
	SceneInit
	SceneWaitRace
	SceneReady
)

var rawScenes = map[uint32]Scene{
	0x8C7CE150: SceneTitleScreen,
	0x8C819B54: SceneMainMenu,
	0x00000000: SceneLoading,
	0x8E51B158: SceneRace,
	0x8EA36604: SceneRaceAfterPause,
	0x8C90E870: SceneSoloMenu,
	0x8C9135EC: ScenePrizeCC,
	0x8CA467A8: ScenePlayerSelection,
	0x8C9CC7F0: ScenePlayerAltSelection,
	0x8CABCB54: SceneCarSelection,
	0x8CB53EA8: ScenePrizeTrackSelection,
	0x8CC9AA68: SceneGoValidation,
	0x8CAC9508: SceneRaceRuleSelection,
	0x8CB7FE00: SceneRaceTrackSelection,
	0x8E77EE74: SceneCinematicIntroRace,
	0x8E7FB12C: ScenePauseMenu,
	0x875B4364: SceneQuitValidation,
	0x8E74212C: SceneRaceResult,
	0x8E991F14: SceneRaceEndMenu,
}

var sceneNames = map[Scene]string{
	SceneUnknown:             "UNKNOWN",
	SceneTitleScreen:         "TITLE_SCREEN",
	SceneMainMenu:            "MAIN_MENU",
	SceneLoading:             "LOADING",
	SceneRace:                "RACE",
	SceneRaceAfterPause:      "RACE_AFTER_PAUSE",
	SceneSoloMenu:            "SOLO_MENU",
	ScenePrizeCC:             "PRIZE_CC",
	ScenePlayerSelection:     "PLAYER_SELECTION",
	ScenePlayerAltSelection:  "PLAYER_ALT_SELECTION",
	SceneCarSelection:        "CAR_SELECTION",
	ScenePrizeTrackSelection: "PRIZE_TRACK_SELECTION",
	SceneGoValidation:        "GO_VALIDATION",
	SceneRaceRuleSelection:   "RACE_RULE_SELECTION",
	SceneRaceTrackSelection:  "RACE_TRACK_SELECTION",
	SceneCinematicIntroRace:  "CINEMATIC_INTRO_RACE",
	ScenePauseMenu:           "PAUSE_MENU",
	SceneQuitValidation:      "QUIT_VALIDATION",
	SceneRaceResult:          "RACE_RESULT",
	SceneRaceEndMenu:         "RACE_END_MENU",
	SceneInit:                "INIT",
	SceneWaitRace:            "WAIT_RACE",
	SceneReady:               "READY",
}

// SceneFromRaw maps the raw scene word read from memory.
func SceneFromRaw(raw int64) Scene {
	if s, ok := rawScenes[uint32(raw)]; ok {
		return s
	}
	return SceneUnknown
}

// Raw returns the in-memory scene word. Internal states have none.
func (s Scene) Raw() (uint32, bool) {
	for raw, sc := range rawScenes {
		if sc == s {
			return raw, true
		}
	}
	return 0, false
}

func (s Scene) String() string {
	if n, ok := sceneNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Scene(%d)", int(s))
}
