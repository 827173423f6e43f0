// Package schedule tracks users, courses, and named timetables, and sends a
// daily class reminder to a configured group. Each user owns any number of
// timetables; the first one is the default and drives the reminder.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"groupbot/internal/command"
	"groupbot/internal/config"
	"groupbot/internal/logger"
)

const registerHint = "register first\ntry: 'help schedule user add'"

const followUpTimeout = 30 * time.Second

// User is a registered timetable owner.
type User struct {
	UID      int64  `json:"uid"`
	Nickname string `json:"nickname"`
}

// Course is a class with its location and weekly slots. An empty ValidWeeks
// means every week of the semester.
type Course struct {
	Name       string `json:"name"`
	Place      string `json:"place"`
	Slots      []Slot `json:"slots"`
	ValidWeeks []int  `json:"valid_weeks,omitempty"`
}

func (c Course) String() string {
	return fmt.Sprintf("%s @ %s : %s", c.Name, c.Place, formatSlots(c.Slots))
}

// Timetable is a named selection of courses owned by one user. A user's
// first timetable in declaration order is the default.
type Timetable struct {
	Owner   int64    `json:"owner"`
	Name    string   `json:"name"`
	Courses []string `json:"courses"`
}

// persistedState is the JSON document written to the state file.
type persistedState struct {
	Users      []*User      `json:"users"`
	Courses    []Course     `json:"courses"`
	Timetables []*Timetable `json:"timetables"`
}

// NotifyFunc posts reminder text to a group. The host wires this to the
// chat adapter; a nil func disables reminders.
type NotifyFunc func(ctx context.Context, groupID int64, text string) error

// Plugin implements the "schedule" command tree and the reminder cron job.
type Plugin struct {
	notify NotifyFunc
	entry  *command.Root

	mu         sync.Mutex
	users      []*User
	courses    []Course
	timetables []*Timetable

	cron          *cron.Cron
	cronSpec      string
	remindGroup   int64
	semesterStart time.Time
}

// New builds the schedule plugin. notify may be nil when the host has no
// outbound channel, e.g. in tests.
func New(notify NotifyFunc) *Plugin {
	p := &Plugin{notify: notify, cronSpec: "0 8 * * *"}
	admin := command.NewRoleSet("admin")
	p.entry = command.NewRoot("schedule", "timetable management commands", nil,
		command.NewGroup("user", "user management", nil,
			command.NewLeaf("add", "register yourself as a user", nil,
				command.NewOptional(p.userAdd, nil,
					command.Param{Name: "nickname", Type: command.TypeString,
						Desc: "your nickname; defaults to user-<id>"})),
			command.NewLeaf("list", "list registered users", nil,
				command.NewFixed(p.userList)),
			command.NewLeaf("remove", "remove a user", admin,
				command.NewOptional(p.userRemove, nil,
					command.Param{Name: "nickname", Type: command.TypeString,
						Desc: "the user to remove; defaults to yourself"})),
		),
		command.NewGroup("course", "course management", nil,
			command.NewLeaf("create", "create a course and add it to your default timetable", nil,
				command.NewVariadic(p.courseCreate, courseParams(), weekParam())),
			command.NewLeaf("createonly", "create a course without adding it to a timetable", nil,
				command.NewVariadic(p.courseCreateOnly, courseParams(), weekParam())),
			command.NewLeaf("list", "list courses", nil,
				command.NewOptional(p.courseList, nil,
					command.Param{Name: "name", Type: command.TypeString,
						Desc: "course name filter; empty lists the first few courses"})),
			command.NewLeaf("add", "add an existing course to a timetable", nil,
				command.NewOptional(p.courseAdd,
					[]command.Param{{Name: "course_name", Type: command.TypeString, Desc: "course name"}},
					command.Param{Name: "timetable_name", Type: command.TypeString,
						Desc: "target timetable; defaults to your default timetable"})),
		),
		command.NewLeaf("add", "create a named timetable", nil,
			command.NewFixed(p.timetableAdd,
				command.Param{Name: "name", Type: command.TypeString, Desc: "timetable name"})),
		command.NewLeaf("list", "list a user's timetables", nil,
			command.NewOptional(p.timetableList, nil,
				command.Param{Name: "user", Type: command.TypeString,
					Desc: "nickname or numeric ID; defaults to yourself"})),
		command.NewLeaf("set", "choose your default timetable", nil,
			command.NewOptional(p.timetableSet, nil,
				command.Param{Name: "name", Type: command.TypeString,
					Desc: "timetable name; empty asks you to pick one"})),
		command.NewLeaf("refresh", "drop timetables whose owner is gone", admin,
			command.NewFixed(p.refresh)),
		command.NewLeaf("status", "dump the plugin state", admin,
			command.NewFixed(p.status)),
	)
	return p
}

func courseParams() []command.Param {
	return []command.Param{
		{Name: "name", Type: command.TypeString, Desc: "course name"},
		{Name: "place", Type: command.TypeString, Desc: "where the class is held"},
		{Name: "time", Type: command.TypeString,
			Desc: "weekly slots in registrar notation, e.g. 3(1,2),5(6,7)"},
	}
}

func weekParam() command.Param {
	return command.Param{Name: "week", Type: command.TypeInt,
		Desc: "week ranges in pairs, e.g. 2 2 5 7 for weeks 2 and 5 through 7; defaults to every week"}
}

func (p *Plugin) Name() string           { return "schedule" }
func (p *Plugin) Entry() command.Command { return p.entry }

// Configure reads the reminder settings. reminder_group_id enables the
// daily reminder; reminder_cron overrides the default 08:00 schedule;
// semester_start (YYYY-MM-DD) enables week-number filtering.
func (p *Plugin) Configure(cfg config.PluginConfig) error {
	if raw, ok := cfg.Settings["reminder_cron"]; ok {
		p.cronSpec = raw
	}
	if raw, ok := cfg.Settings["reminder_group_id"]; ok {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("schedule: parse reminder_group_id: %w", err)
		}
		p.remindGroup = id
	}
	if raw, ok := cfg.Settings["semester_start"]; ok {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return fmt.Errorf("schedule: parse semester_start: %w", err)
		}
		p.semesterStart = t
	}
	return nil
}

// Start schedules the daily reminder. A missing reminder group or notify
// channel disables it.
func (p *Plugin) Start() error {
	if p.notify == nil || p.remindGroup == 0 {
		logger.Info("Reminders disabled", "plugin", p.Name())
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(p.cronSpec, p.remind); err != nil {
		return fmt.Errorf("schedule: cron spec %q: %w", p.cronSpec, err)
	}
	c.Start()
	p.cron = c
	logger.Info("Reminders scheduled", "plugin", p.Name(), "cron", p.cronSpec, "group", p.remindGroup)
	return nil
}

// Stop halts the reminder cron job.
func (p *Plugin) Stop() {
	if p.cron != nil {
		p.cron.Stop()
	}
}

func (p *Plugin) MarshalState() (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return persistedState{Users: p.users, Courses: p.courses, Timetables: p.timetables}, nil
}

func (p *Plugin) RestoreState(data []byte) error {
	var st persistedState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users = st.Users
	p.courses = st.Courses
	p.timetables = st.Timetables
	return nil
}

// userByUID returns the registered user with the given ID. Callers hold mu.
func (p *Plugin) userByUID(uid int64) *User {
	for _, u := range p.users {
		if u.UID == uid {
			return u
		}
	}
	return nil
}

// userByNick returns the registered user with the given nickname. Callers
// hold mu.
func (p *Plugin) userByNick(nick string) *User {
	for _, u := range p.users {
		if u.Nickname == nick {
			return u
		}
	}
	return nil
}

// timetablesOf returns a user's timetables in order, default first.
// Callers hold mu.
func (p *Plugin) timetablesOf(uid int64) []*Timetable {
	var owned []*Timetable
	for _, t := range p.timetables {
		if t.Owner == uid {
			owned = append(owned, t)
		}
	}
	return owned
}

// timetableByName returns the named timetable of any owner. Callers hold mu.
func (p *Plugin) timetableByName(name string) *Timetable {
	for _, t := range p.timetables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// addTimetable appends a timetable for uid, rejecting duplicate names
// across all owners. Callers hold mu.
func (p *Plugin) addTimetable(uid int64, name string) error {
	if p.timetableByName(name) != nil {
		return fmt.Errorf("timetable %s already exists", name)
	}
	p.timetables = append(p.timetables, &Timetable{Owner: uid, Name: name})
	return nil
}

// defaultTimetable returns uid's default timetable, creating one named
// after the user when none exists yet. Callers hold mu.
func (p *Plugin) defaultTimetable(u *User) *Timetable {
	if owned := p.timetablesOf(u.UID); len(owned) > 0 {
		return owned[0]
	}
	t := &Timetable{Owner: u.UID, Name: u.Nickname + "'s schedule"}
	p.timetables = append(p.timetables, t)
	return t
}

func (p *Plugin) userAdd(inv *command.Invocation, nickname *string) command.Result {
	nick := fmt.Sprintf("user-%d", inv.CallerID)
	if nickname != nil {
		nick = *nickname
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if u := p.userByUID(inv.CallerID); u != nil {
		return command.Result{Code: 1, Reply: fmt.Sprintf("user %s already exists", u.Nickname)}
	}
	if p.userByNick(nick) != nil {
		return command.Result{Code: 1, Reply: fmt.Sprintf("nickname %s is already taken", nick)}
	}
	u := &User{UID: inv.CallerID, Nickname: nick}
	p.users = append(p.users, u)
	p.defaultTimetable(u)
	return command.Result{
		Log:   fmt.Sprintf("User added: %s (%d)", nick, inv.CallerID),
		Reply: fmt.Sprintf("user %s added", nick),
	}
}

func (p *Plugin) userList(inv *command.Invocation) command.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.users) == 0 {
		return command.Result{Reply: "No registered users"}
	}
	nicks := make([]string, len(p.users))
	for i, u := range p.users {
		nicks[i] = u.Nickname
	}
	return command.Result{Reply: "Registered users: " + strings.Join(nicks, ", ")}
}

func (p *Plugin) userRemove(inv *command.Invocation, nickname *string) command.Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	var nick string
	if nickname != nil {
		nick = *nickname
	} else {
		u := p.userByUID(inv.CallerID)
		if u == nil {
			return command.Result{Code: 1, Reply: registerHint}
		}
		nick = u.Nickname
	}

	for i, u := range p.users {
		if u.Nickname == nick {
			p.users = append(p.users[:i], p.users[i+1:]...)
			p.dropTimetablesOf(u.UID)
			return command.Result{
				Log:   fmt.Sprintf("User removed: %s", nick),
				Reply: fmt.Sprintf("user %s removed", nick),
			}
		}
	}
	return command.Result{Code: 1, Reply: fmt.Sprintf("user %s not found", nick)}
}

// dropTimetablesOf removes every timetable owned by uid. Callers hold mu.
func (p *Plugin) dropTimetablesOf(uid int64) {
	kept := p.timetables[:0]
	for _, t := range p.timetables {
		if t.Owner != uid {
			kept = append(kept, t)
		}
	}
	p.timetables = kept
}

func (p *Plugin) timetableAdd(inv *command.Invocation, name string) command.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.userByUID(inv.CallerID) == nil {
		return command.Result{Code: 1, Reply: registerHint}
	}
	if err := p.addTimetable(inv.CallerID, name); err != nil {
		return command.Result{Code: 1, Reply: err.Error()}
	}
	return command.Result{
		Log:   fmt.Sprintf("Timetable added: %s", name),
		Reply: fmt.Sprintf("timetable %s added", name),
	}
}

func (p *Plugin) timetableList(inv *command.Invocation, who *string) command.Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	var u *User
	if who == nil {
		if u = p.userByUID(inv.CallerID); u == nil {
			return command.Result{Code: 1, Reply: registerHint}
		}
	} else {
		u = p.userByNick(*who)
		if u == nil {
			if uid, err := strconv.ParseInt(*who, 10, 64); err == nil {
				u = p.userByUID(uid)
			}
		}
		if u == nil {
			return command.Result{Code: 1, Reply: fmt.Sprintf("user %s not found", *who)}
		}
	}

	owned := p.timetablesOf(u.UID)
	if len(owned) == 0 {
		return command.Result{Reply: fmt.Sprintf("%s has no timetables", u.Nickname)}
	}
	names := make([]string, len(owned))
	for i, t := range owned {
		names[i] = t.Name
	}
	return command.Result{
		Reply: fmt.Sprintf("Timetables for %s: %s", u.Nickname, strings.Join(names, ", ")),
	}
}

func (p *Plugin) timetableSet(inv *command.Invocation, name *string) command.Result {
	p.mu.Lock()
	if p.userByUID(inv.CallerID) == nil {
		p.mu.Unlock()
		return command.Result{Code: 1, Reply: registerHint}
	}
	owned := p.timetablesOf(inv.CallerID)
	if len(owned) == 0 {
		p.mu.Unlock()
		return command.Result{Code: 1, Reply: "you have no timetables"}
	}
	names := make([]string, len(owned))
	for i, t := range owned {
		names[i] = t.Name
	}
	p.mu.Unlock()

	chosen := ""
	if name != nil {
		chosen = *name
	} else {
		idx, ret := p.askChoice(inv, "Choose a timetable:", names)
		if ret != nil {
			return *ret
		}
		chosen = names[idx]
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.promoteTimetable(inv.CallerID, chosen) {
		return command.Result{Code: 2, Reply: fmt.Sprintf("timetable %s not found", chosen)}
	}
	return command.Result{
		Log:   fmt.Sprintf("Default timetable set: %s", chosen),
		Reply: fmt.Sprintf("set %s as the default timetable", chosen),
	}
}

// promoteTimetable moves uid's timetable with the given name in front of
// the owner's current default. Callers hold mu.
func (p *Plugin) promoteTimetable(uid int64, name string) bool {
	chosenIdx := -1
	firstIdx := -1
	for i, t := range p.timetables {
		if t.Owner != uid {
			continue
		}
		if firstIdx == -1 {
			firstIdx = i
		}
		if t.Name == name {
			chosenIdx = i
		}
	}
	if chosenIdx == -1 {
		return false
	}
	if chosenIdx == firstIdx {
		return true
	}
	chosen := p.timetables[chosenIdx]
	p.timetables = append(p.timetables[:chosenIdx], p.timetables[chosenIdx+1:]...)
	rest := append([]*Timetable{chosen}, p.timetables[firstIdx:]...)
	p.timetables = append(p.timetables[:firstIdx], rest...)
	return true
}

// askChoice prompts the caller with a numbered list and waits for a
// follow-up message naming one entry. On failure the returned Result is
// non-nil and should be returned as-is.
func (p *Plugin) askChoice(inv *command.Invocation, prompt string, options []string) (int, *command.Result) {
	if inv.Follower == nil {
		return 0, &command.Result{Code: 1, Reply: "follow-up messages are not supported here"}
	}
	var b strings.Builder
	b.WriteString(prompt)
	for i, opt := range options {
		fmt.Fprintf(&b, "\n%d : %s", i+1, opt)
	}
	if err := inv.Reply(b.String()); err != nil {
		return 0, &command.Result{Code: 2, Log: fmt.Sprintf("Reply failed: %v", err)}
	}

	text, err := inv.Follower.Next(inv.Ctx, followUpTimeout)
	if err != nil {
		return 0, &command.Result{
			Code:  1,
			Log:   fmt.Sprintf("Choice solicitation failed: %v", err),
			Reply: "timed out waiting for a choice",
		}
	}
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 1 || n > len(options) {
		return 0, &command.Result{
			Code:  1,
			Reply: fmt.Sprintf("pick a number between 1 and %d", len(options)),
		}
	}
	return n - 1, nil
}

func (p *Plugin) courseCreate(inv *command.Invocation, name, place, timeSpec string, weeks ...int) command.Result {
	return p.createCourse(inv, name, place, timeSpec, weeks, true)
}

func (p *Plugin) courseCreateOnly(inv *command.Invocation, name, place, timeSpec string, weeks ...int) command.Result {
	return p.createCourse(inv, name, place, timeSpec, weeks, false)
}

func (p *Plugin) createCourse(inv *command.Invocation, name, place, timeSpec string, weeks []int, attach bool) command.Result {
	slots, err := ParseSlots(timeSpec)
	if err != nil {
		return command.Result{Code: 1, Reply: fmt.Sprintf("bad time expression: %v", err)}
	}

	if len(weeks)%2 != 0 {
		return command.Result{Code: 3,
			Reply: "week list comes in pairs, e.g. 2 2 5 7 for weeks 2 and 5 through 7"}
	}
	var validWeeks []int
	for i := 0; i < len(weeks); i += 2 {
		a, b := weeks[i], weeks[i+1]
		if a < 1 || b < a {
			return command.Result{Code: 3, Reply: fmt.Sprintf("invalid week range %d %d", a, b)}
		}
		for w := a; w <= b; w++ {
			validWeeks = append(validWeeks, w)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if attach {
		u := p.userByUID(inv.CallerID)
		if u == nil {
			return command.Result{Code: 1, Reply: registerHint}
		}
		t := p.defaultTimetable(u)
		t.Courses = append(t.Courses, name)
	}
	p.courses = append(p.courses, Course{Name: name, Place: place, Slots: slots, ValidWeeks: validWeeks})
	return command.Result{
		Log:   fmt.Sprintf("Course added: %s", name),
		Reply: fmt.Sprintf("course %s added", name),
	}
}

func (p *Plugin) courseAdd(inv *command.Invocation, courseName string, timetableName *string) command.Result {
	p.mu.Lock()
	u := p.userByUID(inv.CallerID)
	if u == nil {
		p.mu.Unlock()
		return command.Result{Code: 1, Reply: registerHint}
	}
	var matches []Course
	for _, c := range p.courses {
		if c.Name == courseName {
			matches = append(matches, c)
		}
	}
	p.mu.Unlock()

	if len(matches) == 0 {
		return command.Result{Code: 2, Reply: fmt.Sprintf("course %s not found", courseName)}
	}
	course := matches[0]
	if len(matches) > 1 {
		options := make([]string, len(matches))
		for i, c := range matches {
			options[i] = c.String()
		}
		idx, ret := p.askChoice(inv,
			fmt.Sprintf("Found several courses named %s, pick one:", courseName), options)
		if ret != nil {
			return *ret
		}
		course = matches[idx]
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	var target *Timetable
	if timetableName == nil {
		target = p.defaultTimetable(u)
	} else {
		for _, t := range p.timetablesOf(u.UID) {
			if t.Name == *timetableName {
				target = t
				break
			}
		}
		if target == nil {
			return command.Result{Code: 3, Reply: fmt.Sprintf("timetable %s not found", *timetableName)}
		}
	}
	for _, cname := range target.Courses {
		if cname == course.Name {
			return command.Result{Code: 4,
				Reply: fmt.Sprintf("course %s is already on timetable %s", course.Name, target.Name)}
		}
	}
	target.Courses = append(target.Courses, course.Name)
	return command.Result{
		Log:   fmt.Sprintf("Course %s added to timetable %s", course.Name, target.Name),
		Reply: fmt.Sprintf("added course %s to timetable %s", course.Name, target.Name),
	}
}

func (p *Plugin) courseList(inv *command.Invocation, name *string) command.Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	if name == nil {
		if len(p.courses) == 0 {
			return command.Result{Reply: "No courses"}
		}
		shown := p.courses
		if len(shown) > 5 {
			shown = shown[:5]
		}
		return command.Result{Reply: "Course list:\n" + joinCourses(shown)}
	}

	var matches []Course
	for _, c := range p.courses {
		if strings.Contains(c.Name, *name) {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return command.Result{Code: 1, Reply: fmt.Sprintf("course %s not found", *name)}
	}
	return command.Result{Reply: "Matching courses:\n" + joinCourses(matches)}
}

func joinCourses(courses []Course) string {
	lines := make([]string, len(courses))
	for i, c := range courses {
		lines[i] = "* " + c.String()
	}
	return strings.Join(lines, "\n")
}

func (p *Plugin) refresh(inv *command.Invocation) command.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.timetables[:0]
	dropped := 0
	for _, t := range p.timetables {
		if p.userByUID(t.Owner) != nil {
			kept = append(kept, t)
		} else {
			dropped++
		}
	}
	p.timetables = kept
	return command.Result{
		Log:   fmt.Sprintf("Timetables refreshed, %d dropped", dropped),
		Reply: fmt.Sprintf("timetables refreshed, dropped %d orphaned", dropped),
	}
}

func (p *Plugin) status(inv *command.Invocation) command.Result {
	p.mu.Lock()
	st := persistedState{Users: p.users, Courses: p.courses, Timetables: p.timetables}
	p.mu.Unlock()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return command.Result{Code: 2, Log: fmt.Sprintf("Status encode failed: %v", err)}
	}
	return command.Result{Reply: string(data)}
}

// remind posts today's classes to the reminder group.
func (p *Plugin) remind() {
	text := p.remindText(time.Now())
	if text == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.notify(ctx, p.remindGroup, text); err != nil {
		logger.Error("Reminder delivery failed", "plugin", p.Name(), "error", err)
	}
}

// remindText renders the reminder for the given day from every user's
// default timetable, or "" when nobody has a class.
func (p *Plugin) remindText(now time.Time) string {
	day := int(now.Weekday())
	if day == 0 {
		day = 7
	}
	week := 0
	if !p.semesterStart.IsZero() {
		week = int(now.Sub(p.semesterStart).Hours()/(24*7)) + 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	byName := make(map[string]Course, len(p.courses))
	for _, c := range p.courses {
		if _, seen := byName[c.Name]; !seen {
			byName[c.Name] = c
		}
	}

	var lines []string
	for _, u := range p.users {
		owned := p.timetablesOf(u.UID)
		if len(owned) == 0 {
			continue
		}
		for _, cname := range owned[0].Courses {
			c, ok := byName[cname]
			if !ok || !courseActive(c, day, week) {
				continue
			}
			for _, s := range c.Slots {
				if s.Day != day {
					continue
				}
				lines = append(lines, fmt.Sprintf("* %s: %s @ %s (periods %d-%d)",
					u.Nickname, c.Name, c.Place, s.First, s.Last))
			}
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return fmt.Sprintf("Class reminder (%s):\n%s", dayNames[day], strings.Join(lines, "\n"))
}

// courseActive reports whether the course meets on the given weekday in the
// given week. week 0 means the week number is unknown and only the weekday
// is checked.
func courseActive(c Course, day, week int) bool {
	met := false
	for _, s := range c.Slots {
		if s.Day == day {
			met = true
			break
		}
	}
	if !met {
		return false
	}
	if week == 0 || len(c.ValidWeeks) == 0 {
		return true
	}
	for _, w := range c.ValidWeeks {
		if w == week {
			return true
		}
	}
	return false
}
