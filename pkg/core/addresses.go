package core

// Address names used outside the table itself.
const (
	AddrSceneID        = "scene_id"
	AddrPauseMenuIdx   = "pause_menu_idx"
	AddrQuitMenuIdx    = "quit_menu_idx"
	AddrMainMenuIdx    = "main_menu_idx"
	AddrSoloMenuIdx    = "solo_menu_idx"
	AddrRaceEndMenuIdx = "race_end_menu_idx"
	AddrPlayerMenuIdx  = "player_menu_idx"
	AddrPlayerAltIdx   = "player_alt_menu_idx"
	AddrCarBodyIdx     = "car_body_idx"
	AddrCarWheelIdx    = "car_wheel_idx"
	AddrCarWingIdx     = "car_wing_idx"
	AddrCarMenuIdx     = "car_menu_idx"
	AddrRuleMenuIdx    = "rule_menu_idx"
	AddrTrackCupSelIdx = "track_cup_sel_idx"
	AddrRuleCC         = "race_rule_cc"
	AddrRuleTeam       = "race_rule_team"
	AddrRuleItem       = "race_rule_item"
	AddrRuleAI         = "race_rule_ai"
	AddrRuleCarAI      = "race_rule_car_ai"
	AddrRuleTrack      = "race_rule_track"
	AddrRuleNum        = "race_rule_num"
	AddrTimer          = "timer"
	AddrSpeed          = "speed"
	AddrCoins          = "coins"
	AddrStatus         = "status"
	AddrRank           = "rank"
	AddrLapContinuous  = "lap_continuous"
	AddrLapDiscrete    = "lap_discrete"
	AddrPosX           = "pos_x"
	AddrPosY           = "pos_y"
	AddrPosZ           = "pos_z"
	AddrTowing         = "towing"
	AddrTrack          = "track"
)

// Race status values of the player slot.
const (
	StatusRacing       = 16
	StatusRacingPaused = 24
)

func i32(name string, off uint64) AddressSpec {
	return AddressSpec{Name: name, Offset: off, Width: 4, Format: FormatInt32}
}

func u8(name string, off uint64) AddressSpec {
	return AddressSpec{Name: name, Offset: off, Width: 1, Format: FormatUint8}
}

func f32(name string, off uint64) AddressSpec {
	return AddressSpec{Name: name, Offset: off, Width: 4, Format: FormatFloat32}
}

// DefaultAddressSpecs returns the address list for the supported game build.
func DefaultAddressSpecs() []AddressSpec {
	return []AddressSpec{
		i32(AddrSceneID, 0x846cb88c),
		i32(AddrPauseMenuIdx, 0x84c38764),
		i32(AddrQuitMenuIdx, 0x84c38124),
		i32(AddrMainMenuIdx, 0x84c382c4),
		i32(AddrSoloMenuIdx, 0x84c382e4),
		i32(AddrRaceEndMenuIdx, 0x84c38794),
		i32(AddrPlayerMenuIdx, 0x84c38374),
		i32(AddrPlayerAltIdx, 0x8c9e6974),
		i32(AddrCarBodyIdx, 0x8cabd37c),
		i32(AddrCarWheelIdx, 0x8cabde2c),
		i32(AddrCarWingIdx, 0x8cabe7ac),
		i32(AddrCarMenuIdx, 0x84c383a4),
		i32(AddrRuleMenuIdx, 0x87665654),
		u8(AddrTrackCupSelIdx, 0x84c38404),
		u8(AddrRuleCC, 0x84db2790),
		u8(AddrRuleTeam, 0x84db276c),
		u8(AddrRuleItem, 0x84db277c),
		u8(AddrRuleAI, 0x84db2798),
		u8(AddrRuleCarAI, 0x84db27ac),
		u8(AddrRuleTrack, 0x84db27c0),
		u8(AddrRuleNum, 0x84db27c8),
		i32(AddrTimer, 0x96afe398),
		f32(AddrSpeed, 0x96bfade8),
		i32(AddrCoins, 0x96bf4ac4),
		i32(AddrStatus, 0x96bf4ab0),
		i32(AddrRank, 0x96bf4ab4),
		f32(AddrLapContinuous, 0x80cc172c),
		u8(AddrLapDiscrete, 0x8e697f8d),
		f32(AddrPosX, 0x96af34d4),
		f32(AddrPosY, 0x96af34d8),
		f32(AddrPosZ, 0x96af34dc),
		// 0 while towed back on track, 154 otherwise
		u8(AddrTowing, 0x954def14),
		i32(AddrTrack, 0x84cc187c),
	}
}

// DefaultAddressTable returns the table built from DefaultAddressSpecs.
func DefaultAddressTable() AddressTable {
	return NewAddressTable(DefaultAddressSpecs())
}

// TelemetryFields lists the per-step telemetry leaves in publish order.
var TelemetryFields = []string{
	AddrTimer,
	AddrSpeed,
	AddrCoins,
	AddrStatus,
	AddrRank,
	AddrLapContinuous,
	AddrLapDiscrete,
	AddrPosX,
	AddrPosY,
	AddrPosZ,
	AddrTowing,
	AddrTrack,
}
