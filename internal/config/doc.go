// Package config loads group settings authored in CUE.
//
// A settings directory holds one CUE package:
//
//	checks: {
//		muted:   true
//		blocked: false
//	}
//
//	role_group: vip: {
//		roles: [{space_id: "guild-1", role_id: "r-vip"}]
//		include: ["user-7"]
//	}
//
//	pattern: "loud-vip": expression: "vip -muted"
//
//	blacklist: ["user-13"]
//	ignore:    ["bot-1"]
//
// Groups are enabled unless they set enabled: false. Role groups and
// patterns keep their declaration order, which is the order their
// notifications are emitted in.
package config
