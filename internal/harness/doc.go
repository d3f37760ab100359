// Package harness runs membership scenarios written in YAML.
//
// A scenario describes a room, the settings in force, and a list of
// steps. Each step changes one thing about the world and lists the control
// messages it must produce, in order:
//
//	name: muted_flip
//	description: "Muting the only participant flips the muted group"
//	room: R
//	space: S
//	settings: |
//	  checks: {friends: false, blocked: false}
//	initial:
//	  present: [A]
//	steps:
//	  - self: R
//	    expect: [some-enter]
//	  - mute: {entity: A}
//	    expect: [muted-enter]
//	  - mute: {entity: A, value: false}
//	    expect: [muted-leave]
//
// # Steps
//
//   - join: ID             ID enters the local participant's room
//   - leave: ID            ID leaves every room
//   - move: {entity, room} ID moves to room
//   - self: ROOM           local participant moves to ROOM ("" leaves)
//   - mute / friend / block: {entity, value}   value defaults to true
//   - volume: {entity, volume}
//   - grant / revoke: {entity, role, space}    space defaults to the scenario space
//   - toggle: {kind, name, enabled}            name is ignored for single-source kinds
//   - reevaluate: KIND     "all" re-checks every kind
//   - stream: {id, viewers}                    local participant's stream; no id ends it
//   - self_audio: {muted, deafened}            local participant's own audio flags
//   - stage: {room, value}                     value defaults to true
//
// A step may also assert the voice room cache with state: {"some": true,
// "role-groups/vip": false}. A key the cache does not hold fails.
//
// # Deterministic Testing
//
// Scenarios run against testutil.World with fixed session tokens, so the
// trace of a scenario is byte-identical across runs and can be compared
// with a golden file.
package harness
