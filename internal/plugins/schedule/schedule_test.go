package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupbot/internal/command"
	"groupbot/internal/config"
	"groupbot/internal/dispatch"
)

type recordingReplier struct {
	replies []string
}

func (r *recordingReplier) Reply(ctx context.Context, text string) error {
	r.replies = append(r.replies, text)
	return nil
}

// cannedFollower answers every follow-up solicitation with the same message.
type cannedFollower struct {
	text string
	err  error
}

func (f *cannedFollower) Next(context.Context, time.Duration) (string, error) {
	return f.text, f.err
}

func invocation(callerID int64, roles command.RoleSet) (*command.Invocation, *recordingReplier) {
	r := &recordingReplier{}
	inv := &command.Invocation{
		Ctx:      context.Background(),
		CallerID: callerID,
		GroupID:  42,
		Roles:    roles,
		Replier:  r,
	}
	return inv, r
}

func run(p *Plugin, line string, callerID int64, roles command.RoleSet) *recordingReplier {
	inv, r := invocation(callerID, roles)
	dispatch.New(nil).Dispatch(p.Entry(), line, inv)
	return r
}

func runWithFollower(p *Plugin, line string, callerID int64, f command.Follower) *recordingReplier {
	inv, r := invocation(callerID, nil)
	inv.Follower = f
	dispatch.New(nil).Dispatch(p.Entry(), line, inv)
	return r
}

func TestParseSlots(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		want    []Slot
		wantErr bool
	}{
		{name: "single slot", expr: "3(1,2)", want: []Slot{{Day: 3, First: 1, Last: 2}}},
		{
			name: "two slots",
			expr: "3(1,2),5(6,7)",
			want: []Slot{{Day: 3, First: 1, Last: 2}, {Day: 5, First: 6, Last: 7}},
		},
		{name: "single period", expr: "7(13)", want: []Slot{{Day: 7, First: 13, Last: 13}}},
		{name: "bad day", expr: "8(1,2)", wantErr: true},
		{name: "not a timetable", expr: "whenever", wantErr: true},
		{name: "reversed range", expr: "3(5,2)", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSlots(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSlotString(t *testing.T) {
	assert.Equal(t, "Wed(1-2)", Slot{Day: 3, First: 1, Last: 2}.String())
	assert.Equal(t, "Sun(13-13)", Slot{Day: 7, First: 13, Last: 13}.String())
}

func TestUserAdd(t *testing.T) {
	p := New(nil)

	r := run(p, "schedule user add alice", 7, nil)
	assert.Equal(t, []string{"user alice added"}, r.replies)

	r = run(p, "schedule user add", 8, nil)
	assert.Equal(t, []string{"user user-8 added"}, r.replies)

	r = run(p, "schedule user add again", 7, nil)
	assert.Equal(t, []string{"user alice already exists"}, r.replies)

	r = run(p, "schedule user add alice", 9, nil)
	assert.Equal(t, []string{"nickname alice is already taken"}, r.replies)
}

func TestUserAdd_CreatesDefaultTimetable(t *testing.T) {
	p := New(nil)
	run(p, "schedule user add alice", 7, nil)

	r := run(p, "schedule list", 7, nil)
	assert.Equal(t, []string{"Timetables for alice: alice's schedule"}, r.replies)
}

func TestUserList(t *testing.T) {
	p := New(nil)

	r := run(p, "schedule user list", 7, nil)
	assert.Equal(t, []string{"No registered users"}, r.replies)

	run(p, "schedule user add alice", 7, nil)
	run(p, "schedule user add bob", 8, nil)

	r = run(p, "schedule user list", 7, nil)
	assert.Equal(t, []string{"Registered users: alice, bob"}, r.replies)
}

func TestUserRemove(t *testing.T) {
	p := New(nil)
	admin := command.NewRoleSet("admin")
	run(p, "schedule user add alice", 7, nil)

	r := run(p, "schedule user remove alice", 8, nil)
	assert.Equal(t, []string{`"schedule user remove": permission denied`}, r.replies)

	r = run(p, "schedule user remove ghost", 10001, admin)
	assert.Equal(t, []string{"user ghost not found"}, r.replies)

	r = run(p, "schedule user remove alice", 10001, admin)
	assert.Equal(t, []string{"user alice removed"}, r.replies)

	r = run(p, "schedule user list", 7, nil)
	assert.Equal(t, []string{"No registered users"}, r.replies)

	p.mu.Lock()
	assert.Empty(t, p.timetables, "removing a user drops their timetables")
	p.mu.Unlock()
}

func TestUserRemove_DefaultsToSelf(t *testing.T) {
	p := New(nil)
	admin := command.NewRoleSet("admin")
	run(p, "schedule user add boss", 10001, nil)

	r := run(p, "schedule user remove", 10001, admin)
	assert.Equal(t, []string{"user boss removed"}, r.replies)
}

func TestTimetableAdd(t *testing.T) {
	p := New(nil)

	r := run(p, "schedule add exams", 7, nil)
	assert.Equal(t, []string{registerHint}, r.replies)

	run(p, "schedule user add alice", 7, nil)
	run(p, "schedule user add bob", 8, nil)

	r = run(p, "schedule add exams", 7, nil)
	assert.Equal(t, []string{"timetable exams added"}, r.replies)

	r = run(p, "schedule add exams", 7, nil)
	assert.Equal(t, []string{"timetable exams already exists"}, r.replies)

	// Names are unique across all owners, not per owner.
	r = run(p, "schedule add exams", 8, nil)
	assert.Equal(t, []string{"timetable exams already exists"}, r.replies)
}

func TestTimetableList(t *testing.T) {
	p := New(nil)

	r := run(p, "schedule list", 7, nil)
	assert.Equal(t, []string{registerHint}, r.replies)

	run(p, "schedule user add alice", 7, nil)
	run(p, "schedule add exams", 7, nil)

	r = run(p, "schedule list", 7, nil)
	assert.Equal(t, []string{"Timetables for alice: alice's schedule, exams"}, r.replies)

	r = run(p, "schedule list alice", 8, nil)
	assert.Equal(t, []string{"Timetables for alice: alice's schedule, exams"}, r.replies)

	r = run(p, "schedule list 7", 8, nil)
	assert.Equal(t, []string{"Timetables for alice: alice's schedule, exams"}, r.replies)

	r = run(p, "schedule list ghost", 8, nil)
	assert.Equal(t, []string{"user ghost not found"}, r.replies)
}

func TestTimetableSet_ByName(t *testing.T) {
	p := New(nil)
	run(p, "schedule user add alice", 7, nil)
	run(p, "schedule add exams", 7, nil)

	r := run(p, "schedule set exams", 7, nil)
	assert.Equal(t, []string{"set exams as the default timetable"}, r.replies)

	r = run(p, "schedule list", 7, nil)
	assert.Equal(t, []string{"Timetables for alice: exams, alice's schedule"}, r.replies)

	r = run(p, "schedule set nope", 7, nil)
	assert.Equal(t, []string{"timetable nope not found"}, r.replies)
}

func TestTimetableSet_InteractiveChoice(t *testing.T) {
	p := New(nil)
	run(p, "schedule user add alice", 7, nil)
	run(p, "schedule add exams", 7, nil)

	r := runWithFollower(p, "schedule set", 7, &cannedFollower{text: " 2 "})
	require.Len(t, r.replies, 2)
	assert.Contains(t, r.replies[0], "Choose a timetable:")
	assert.Contains(t, r.replies[0], "1 : alice's schedule")
	assert.Contains(t, r.replies[0], "2 : exams")
	assert.Equal(t, "set exams as the default timetable", r.replies[1])

	r = run(p, "schedule list", 7, nil)
	assert.Equal(t, []string{"Timetables for alice: exams, alice's schedule"}, r.replies)
}

func TestTimetableSet_ChoiceFailures(t *testing.T) {
	p := New(nil)
	run(p, "schedule user add alice", 7, nil)
	run(p, "schedule add exams", 7, nil)

	t.Run("no follow-up channel", func(t *testing.T) {
		r := run(p, "schedule set", 7, nil)
		assert.Equal(t, []string{"follow-up messages are not supported here"}, r.replies)
	})

	t.Run("out-of-range number", func(t *testing.T) {
		r := runWithFollower(p, "schedule set", 7, &cannedFollower{text: "9"})
		require.Len(t, r.replies, 2)
		assert.Equal(t, "pick a number between 1 and 2", r.replies[1])
	})

	t.Run("not a number", func(t *testing.T) {
		r := runWithFollower(p, "schedule set", 7, &cannedFollower{text: "exams"})
		require.Len(t, r.replies, 2)
		assert.Equal(t, "pick a number between 1 and 2", r.replies[1])
	})

	t.Run("timed out", func(t *testing.T) {
		r := runWithFollower(p, "schedule set", 7, &cannedFollower{err: errors.New("timed out")})
		require.Len(t, r.replies, 2)
		assert.Equal(t, "timed out waiting for a choice", r.replies[1])
	})

	t.Run("unregistered caller", func(t *testing.T) {
		r := run(p, "schedule set", 8, nil)
		assert.Equal(t, []string{registerHint}, r.replies)
	})
}

func TestCourseCreate(t *testing.T) {
	p := New(nil)

	r := run(p, "schedule course create algebra bldg-3 3(1,2),5(6,7)", 7, nil)
	assert.Equal(t, []string{registerHint}, r.replies)

	run(p, "schedule user add alice", 7, nil)

	r = run(p, "schedule course create algebra bldg-3 3(1,2),5(6,7) 2 2 5 7", 7, nil)
	assert.Equal(t, []string{"course algebra added"}, r.replies)

	p.mu.Lock()
	require.Len(t, p.courses, 1)
	assert.Equal(t, []int{2, 5, 6, 7}, p.courses[0].ValidWeeks)
	owned := p.timetablesOf(7)
	require.Len(t, owned, 1)
	assert.Equal(t, []string{"algebra"}, owned[0].Courses, "create attaches to the default timetable")
	p.mu.Unlock()
}

func TestCourseCreateOnly(t *testing.T) {
	p := New(nil)
	run(p, "schedule user add alice", 7, nil)

	r := run(p, "schedule course createonly algebra bldg-3 3(1,2)", 7, nil)
	assert.Equal(t, []string{"course algebra added"}, r.replies)

	p.mu.Lock()
	require.Len(t, p.courses, 1)
	owned := p.timetablesOf(7)
	require.Len(t, owned, 1)
	assert.Empty(t, owned[0].Courses, "createonly leaves timetables alone")
	p.mu.Unlock()
}

func TestCourseCreate_BadInput(t *testing.T) {
	p := New(nil)
	run(p, "schedule user add alice", 7, nil)

	r := run(p, "schedule course create algebra bldg-3 someday", 7, nil)
	require.Len(t, r.replies, 1)
	assert.Contains(t, r.replies[0], "bad time expression")

	r = run(p, "schedule course create algebra bldg-3 3(1,2) 2 2 5", 7, nil)
	require.Len(t, r.replies, 1)
	assert.Contains(t, r.replies[0], "week list comes in pairs")

	r = run(p, "schedule course create algebra bldg-3 3(1,2) 7 2", 7, nil)
	require.Len(t, r.replies, 1)
	assert.Contains(t, r.replies[0], "invalid week range 7 2")
}

func TestCourseAdd(t *testing.T) {
	p := New(nil)
	run(p, "schedule user add alice", 7, nil)
	run(p, "schedule course createonly algebra bldg-3 3(1,2)", 7, nil)
	run(p, "schedule add exams", 7, nil)

	r := run(p, "schedule course add chemistry", 7, nil)
	assert.Equal(t, []string{"course chemistry not found"}, r.replies)

	r = run(p, "schedule course add algebra", 7, nil)
	assert.Equal(t, []string{"added course algebra to timetable alice's schedule"}, r.replies)

	r = run(p, "schedule course add algebra", 7, nil)
	assert.Equal(t, []string{"course algebra is already on timetable alice's schedule"}, r.replies)

	r = run(p, "schedule course add algebra exams", 7, nil)
	assert.Equal(t, []string{"added course algebra to timetable exams"}, r.replies)

	r = run(p, "schedule course add algebra nope", 7, nil)
	assert.Equal(t, []string{"timetable nope not found"}, r.replies)

	r = run(p, "schedule course add algebra", 8, nil)
	assert.Equal(t, []string{registerHint}, r.replies)
}

func TestCourseAdd_AmbiguousNameAsksForAChoice(t *testing.T) {
	p := New(nil)
	run(p, "schedule user add alice", 7, nil)
	run(p, "schedule course createonly algebra bldg-3 3(1,2)", 7, nil)
	run(p, "schedule course createonly algebra lab-1 5(6,7)", 7, nil)

	r := runWithFollower(p, "schedule course add algebra", 7, &cannedFollower{text: "2"})
	require.Len(t, r.replies, 2)
	assert.Contains(t, r.replies[0], "Found several courses named algebra")
	assert.Contains(t, r.replies[0], "1 : algebra @ bldg-3 : Wed(1-2)")
	assert.Contains(t, r.replies[0], "2 : algebra @ lab-1 : Fri(6-7)")
	assert.Equal(t, "added course algebra to timetable alice's schedule", r.replies[1])

	r = run(p, "schedule course add algebra", 7, nil)
	assert.Equal(t, []string{"follow-up messages are not supported here"}, r.replies)
}

func TestCourseList(t *testing.T) {
	p := New(nil)
	run(p, "schedule user add alice", 7, nil)

	r := run(p, "schedule course list", 7, nil)
	assert.Equal(t, []string{"No courses"}, r.replies)

	run(p, "schedule course create algebra bldg-3 3(1,2),5(6,7)", 7, nil)
	run(p, "schedule course create physics lab-1 2(3,4)", 7, nil)

	r = run(p, "schedule course list", 7, nil)
	require.Len(t, r.replies, 1)
	assert.Contains(t, r.replies[0], "Course list:")
	assert.Contains(t, r.replies[0], "* algebra @ bldg-3 : Wed(1-2), Fri(6-7)")
	assert.Contains(t, r.replies[0], "* physics @ lab-1 : Tue(3-4)")

	r = run(p, "schedule course list alg", 7, nil)
	require.Len(t, r.replies, 1)
	assert.Contains(t, r.replies[0], "Matching courses:")
	assert.Contains(t, r.replies[0], "algebra")
	assert.NotContains(t, r.replies[0], "physics")

	r = run(p, "schedule course list chemistry", 7, nil)
	assert.Equal(t, []string{"course chemistry not found"}, r.replies)
}

func TestRefresh(t *testing.T) {
	p := New(nil)
	admin := command.NewRoleSet("admin")
	run(p, "schedule user add alice", 7, nil)

	p.mu.Lock()
	p.timetables = append(p.timetables, &Timetable{Owner: 99, Name: "orphan"})
	p.mu.Unlock()

	r := run(p, "schedule refresh", 8, nil)
	assert.Equal(t, []string{`"schedule refresh": permission denied`}, r.replies)

	r = run(p, "schedule refresh", 10001, admin)
	assert.Equal(t, []string{"timetables refreshed, dropped 1 orphaned"}, r.replies)

	r = run(p, "schedule list", 7, nil)
	assert.Equal(t, []string{"Timetables for alice: alice's schedule"}, r.replies)
}

func TestStatus(t *testing.T) {
	p := New(nil)
	admin := command.NewRoleSet("admin")
	run(p, "schedule user add alice", 7, nil)

	r := run(p, "schedule status", 8, nil)
	assert.Equal(t, []string{`"schedule status": permission denied`}, r.replies)

	r = run(p, "schedule status", 10001, admin)
	require.Len(t, r.replies, 1)

	var st persistedState
	require.NoError(t, json.Unmarshal([]byte(r.replies[0]), &st))
	require.Len(t, st.Users, 1)
	assert.Equal(t, "alice", st.Users[0].Nickname)
	require.Len(t, st.Timetables, 1)
	assert.Equal(t, "alice's schedule", st.Timetables[0].Name)
}

func TestStateRoundTrip(t *testing.T) {
	p := New(nil)
	run(p, "schedule user add alice", 7, nil)
	run(p, "schedule add exams", 7, nil)
	run(p, "schedule course create algebra bldg-3 3(1,2)", 7, nil)

	obj, err := p.MarshalState()
	require.NoError(t, err)
	data, err := json.Marshal(obj)
	require.NoError(t, err)

	restored := New(nil)
	require.NoError(t, restored.RestoreState(data))

	r := run(restored, "schedule user list", 7, nil)
	assert.Equal(t, []string{"Registered users: alice"}, r.replies)
	r = run(restored, "schedule list", 7, nil)
	assert.Equal(t, []string{"Timetables for alice: alice's schedule, exams"}, r.replies)
	r = run(restored, "schedule course list", 7, nil)
	assert.Contains(t, r.replies[0], "algebra")
}

func TestConfigure(t *testing.T) {
	p := New(nil)
	require.NoError(t, p.Configure(config.PluginConfig{Settings: map[string]string{
		"reminder_cron":     "30 7 * * *",
		"reminder_group_id": "999",
		"semester_start":    "2026-02-23",
	}}))
	assert.Equal(t, "30 7 * * *", p.cronSpec)
	assert.Equal(t, int64(999), p.remindGroup)
	assert.Equal(t, time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC), p.semesterStart)

	err := p.Configure(config.PluginConfig{Settings: map[string]string{
		"reminder_group_id": "everyone",
	}})
	assert.Error(t, err)
}

func TestStart_DisabledWithoutNotify(t *testing.T) {
	p := New(nil)
	require.NoError(t, p.Configure(config.PluginConfig{Settings: map[string]string{
		"reminder_group_id": "999",
	}}))
	assert.NoError(t, p.Start())
	assert.Nil(t, p.cron)
	p.Stop()
}

func TestStart_BadCronSpec(t *testing.T) {
	notify := func(ctx context.Context, groupID int64, text string) error { return nil }
	p := New(notify)
	require.NoError(t, p.Configure(config.PluginConfig{Settings: map[string]string{
		"reminder_group_id": "999",
		"reminder_cron":     "whenever",
	}}))
	assert.Error(t, p.Start())
}

func TestRemindText(t *testing.T) {
	p := New(nil)
	run(p, "schedule user add alice", 7, nil)
	run(p, "schedule user add bob", 8, nil)
	run(p, "schedule course create algebra bldg-3 3(1,2) 1 2", 7, nil)

	// 2026-01-07 is a Wednesday.
	wednesday := time.Date(2026, 1, 7, 8, 0, 0, 0, time.UTC)
	thursday := wednesday.AddDate(0, 0, 1)

	text := p.remindText(wednesday)
	assert.Contains(t, text, "Class reminder (Wed):")
	assert.Contains(t, text, "* alice: algebra @ bldg-3 (periods 1-2)")
	assert.NotContains(t, text, "bob")

	assert.Empty(t, p.remindText(thursday), "no classes on Thursday")

	// Week filtering: the course only runs in weeks 1-2 of the semester.
	p.semesterStart = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	assert.NotEmpty(t, p.remindText(wednesday), "week 1 is valid")

	lateWednesday := wednesday.AddDate(0, 0, 21)
	assert.Empty(t, p.remindText(lateWednesday), "week 4 is out of range")
}

func TestRemindText_UsesDefaultTimetable(t *testing.T) {
	p := New(nil)
	run(p, "schedule user add alice", 7, nil)
	run(p, "schedule course create algebra bldg-3 3(1,2)", 7, nil)
	run(p, "schedule add empty", 7, nil)
	run(p, "schedule set empty", 7, nil)

	// 2026-01-07 is a Wednesday; algebra lives on the non-default timetable.
	wednesday := time.Date(2026, 1, 7, 8, 0, 0, 0, time.UTC)
	assert.Empty(t, p.remindText(wednesday))

	run(p, `schedule set "alice's schedule"`, 7, nil)
	assert.Contains(t, p.remindText(wednesday), "algebra")
}
