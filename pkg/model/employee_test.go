package model

import "testing"

func TestActor_CanEditTeam(t *testing.T) {
	tests := []struct {
		name     string
		actor    *Actor
		teamID   int64
		expected bool
	}{
		{"空操作人", nil, 1, false},
		{"未登录", &Actor{UserID: 0, Role: "admin"}, 1, false},
		{"管理员", &Actor{UserID: 1, Role: "admin", EditableTeams: []int64{}}, 9, true},
		{"不限团队", &Actor{UserID: 2, Role: "leader"}, 9, true},
		{"白名单命中", &Actor{UserID: 3, Role: "leader", EditableTeams: []int64{4, 9}}, 9, true},
		{"白名单未命中", &Actor{UserID: 3, Role: "leader", EditableTeams: []int64{4}}, 9, false},
		{"空白名单", &Actor{UserID: 3, Role: "leader", EditableTeams: []int64{}}, 9, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.actor.CanEditTeam(tt.teamID); got != tt.expected {
				t.Errorf("CanEditTeam() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRestTypeCounts_Add(t *testing.T) {
	var c RestTypeCounts
	c.Add(RestWorkdays)
	c.Add(RestWeekend)
	c.Add(RestWeekend)
	c.Add("other")
	if c.Workdays != 1 || c.Weekend != 2 {
		t.Errorf("counts = %+v, want workdays=1 weekend=2", c)
	}
}

func TestCellMap(t *testing.T) {
	m := CellMap{}
	if got := m.Get(1, "2026-01-05"); got != "" {
		t.Errorf("空表 Get() = %q", got)
	}
	m.Set(1, "2026-01-05", ShiftPrimary)
	if got := m.Get(1, "2026-01-05"); got != ShiftPrimary {
		t.Errorf("Get() = %q, want 白", got)
	}
}
