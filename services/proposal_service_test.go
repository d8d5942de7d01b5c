package services

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"
	"testing"
	"time"

	"pfe-management-api/models"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stepKind int

const (
	kindQuery stepKind = iota
	kindExec
)

type queryStep struct {
	kind    stepKind
	pattern *regexp.Regexp
	args    []driver.Value
	anyArgs bool
	columns []string
	rows    [][]driver.Value
	err     error
	result  driver.Result
}

type scriptedDB struct {
	mu    sync.Mutex
	steps []*queryStep
}

func (db *scriptedDB) next(kind stepKind, query string, args []driver.NamedValue) (*queryStep, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if len(db.steps) == 0 {
		return nil, fmt.Errorf("unexpected query: %s", query)
	}
	step := db.steps[0]
	if step.kind != kind {
		return nil, fmt.Errorf("unexpected kind for query %s: got %v want %v", query, kind, step.kind)
	}
	if !step.pattern.MatchString(query) {
		return nil, fmt.Errorf("unexpected query: %s", query)
	}
	if !step.anyArgs {
		if len(step.args) != len(args) {
			return nil, fmt.Errorf("unexpected arg count for %s: got %d want %d", query, len(args), len(step.args))
		}
		for i := range args {
			if args[i].Value != step.args[i] {
				return nil, fmt.Errorf("unexpected arg %d for %s: got %v want %v", i, query, args[i].Value, step.args[i])
			}
		}
	}
	db.steps = db.steps[1:]
	return step, nil
}

func (db *scriptedDB) verifyComplete() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if len(db.steps) != 0 {
		return fmt.Errorf("unmet expectations: %d", len(db.steps))
	}
	return nil
}

type scriptedDriver struct {
	db *scriptedDB
}

func (d *scriptedDriver) Open(string) (driver.Conn, error) {
	return &scriptedConn{db: d.db}, nil
}

type scriptedConn struct {
	db *scriptedDB
}

func (c *scriptedConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}

func (c *scriptedConn) Close() error { return nil }

func (c *scriptedConn) Begin() (driver.Tx, error) {
	return nil, errors.New("transactions not supported")
}

func (c *scriptedConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	step, err := c.db.next(kindQuery, query, args)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if step.err != nil {
		return nil, step.err
	}
	return &scriptedRows{columns: step.columns, rows: step.rows}, nil
}

func (c *scriptedConn) Query(query string, args []driver.Value) (driver.Rows, error) {
	named := make([]driver.NamedValue, len(args))
	for i, v := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return c.QueryContext(context.Background(), query, named)
}

func (c *scriptedConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	step, err := c.db.next(kindExec, query, args)
	if err != nil {
		return nil, err
	}
	if step.err != nil {
		return nil, step.err
	}
	if step.result != nil {
		return step.result, nil
	}
	return scriptedResult{}, nil
}

func (c *scriptedConn) Exec(query string, args []driver.Value) (driver.Result, error) {
	named := make([]driver.NamedValue, len(args))
	for i, v := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return c.ExecContext(context.Background(), query, named)
}

type scriptedResult struct {
	lastInsertID int64
	rowsAffected int64
}

func (r scriptedResult) LastInsertId() (int64, error) { return r.lastInsertID, nil }

func (r scriptedResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

type scriptedRows struct {
	columns []string
	rows    [][]driver.Value
	idx     int
}

func (r *scriptedRows) Columns() []string { return r.columns }

func (r *scriptedRows) Close() error { return nil }

func (r *scriptedRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	row := r.rows[r.idx]
	for i := range dest {
		dest[i] = nil
	}
	for i := range row {
		dest[i] = row[i]
	}
	r.idx++
	return nil
}

func newScriptedGormDB(t *testing.T, steps []*queryStep) (*gorm.DB, *scriptedDB, func()) {
	t.Helper()
	state := &scriptedDB{steps: steps}
	driverName := fmt.Sprintf("scripted_%d", time.Now().UnixNano())
	sql.Register(driverName, &scriptedDriver{db: state})

	sqlDB, err := sql.Open(driverName, "")
	if err != nil {
		t.Fatalf("failed to open sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to create gorm db: %v", err)
	}

	cleanup := func() {
		_ = sqlDB.Close()
	}
	return gormDB, state, cleanup
}

func testSession(db *gorm.DB) *gorm.DB {
	return db.Session(&gorm.Session{SkipDefaultTransaction: true, Logger: db.Logger.LogMode(logger.Silent)})
}

var proposalColumns = []string{
	"proposal_id", "project_id", "submitted_by", "proposer_type",
	"co_supervisor_name", "co_supervisor_surname",
	"proposal_status", "is_final_version",
	"edited_by", "edit_accepted", "last_edited_version", "review_comments",
}

func responsibleTeacher(userID int) *models.User {
	return &models.User{
		UserID: userID,
		Role:   models.RoleTeacher,
		Teacher: &models.Teacher{
			TeacherID:     userID,
			UserID:        userID,
			IsResponsible: true,
		},
	}
}

func TestCheckStudentQuotaAtLimit(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT count\\(\\*\\) FROM `project_proposals`"),
			args:    []driver.Value{int64(7), models.ProposalStatusRejected},
			columns: []string{"count(*)"},
			rows:    [][]driver.Value{{int64(3)}},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	student := &models.User{UserID: 7, Role: models.RoleStudent}
	err := CheckStudentQuota(testSession(db), student)

	var quotaErr *QuotaError
	if !errors.As(err, &quotaErr) {
		t.Fatalf("expected QuotaError, got %v", err)
	}
	if quotaErr.Limit != models.MaxStudentProposals {
		t.Fatalf("expected limit %d, got %d", models.MaxStudentProposals, quotaErr.Limit)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestCheckStudentQuotaBelowLimitAfterRejection(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT count\\(\\*\\) FROM `project_proposals`"),
			args:    []driver.Value{int64(7), models.ProposalStatusRejected},
			columns: []string{"count(*)"},
			rows:    [][]driver.Value{{int64(2)}},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	student := &models.User{UserID: 7, Role: models.RoleStudent}
	if err := CheckStudentQuota(testSession(db), student); err != nil {
		t.Fatalf("expected quota to pass with 2 active proposals, got %v", err)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestCheckStudentQuotaIgnoresNonStudents(t *testing.T) {
	db, state, cleanup := newScriptedGormDB(t, nil)
	defer cleanup()

	teacher := &models.User{UserID: 3, Role: models.RoleTeacher}
	if err := CheckStudentQuota(testSession(db), teacher); err != nil {
		t.Fatalf("expected no quota check for teachers, got %v", err)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestDecideApproveValidatesProjectAndLogsAudit(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT \\* FROM `project_proposals` WHERE proposal_id = \\?.+FOR UPDATE$"),
			args:    []driver.Value{int64(11)},
			columns: proposalColumns,
			rows: [][]driver.Value{{
				int64(11), int64(5), int64(7), models.RoleStudent,
				nil, nil,
				models.ProposalStatusPending, int64(0),
				nil, nil, nil, nil,
			}},
		},
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("UPDATE `project_proposals` SET"),
			anyArgs: true,
			result:  scriptedResult{rowsAffected: 1},
		},
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("UPDATE `projects` SET"),
			anyArgs: true,
			result:  scriptedResult{rowsAffected: 1},
		},
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("INSERT INTO `audit_logs`"),
			anyArgs: true,
			result:  scriptedResult{lastInsertID: 1, rowsAffected: 1},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	svc := &ProposalService{db: db}
	actor := responsibleTeacher(2)

	proposal, err := svc.decideTx(testSession(db), actor, 11, DecisionApprove, "looks solid", AuditMeta{IPAddress: "10.0.0.1"})
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if proposal.ProposalStatus != models.ProposalStatusApproved {
		t.Fatalf("expected Approved, got %s", proposal.ProposalStatus)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestDecideIsIdempotentOnTerminalProposal(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT \\* FROM `project_proposals` WHERE proposal_id = \\?.+FOR UPDATE$"),
			args:    []driver.Value{int64(11)},
			columns: proposalColumns,
			rows: [][]driver.Value{{
				int64(11), int64(5), int64(7), models.RoleStudent,
				nil, nil,
				models.ProposalStatusApproved, int64(0),
				nil, nil, nil, nil,
			}},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	svc := &ProposalService{db: db}
	actor := responsibleTeacher(2)

	_, err := svc.decideTx(testSession(db), actor, 11, DecisionApprove, "", AuditMeta{})
	var stErr *StateError
	if !errors.As(err, &stErr) {
		t.Fatalf("expected StateError on second approval, got %v", err)
	}

	// No project update and no audit write may follow the guard.
	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestDecideRejectsNonResponsibleTeacher(t *testing.T) {
	db, state, cleanup := newScriptedGormDB(t, nil)
	defer cleanup()

	svc := &ProposalService{db: db}
	actor := &models.User{
		UserID:  2,
		Role:    models.RoleTeacher,
		Teacher: &models.Teacher{TeacherID: 2, UserID: 2, IsResponsible: false},
	}

	_, err := svc.decideTx(testSession(db), actor, 11, DecisionApprove, "", AuditMeta{})
	var authErr *AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestMarkFinalClearsSiblingFlagsFirst(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT \\* FROM `project_proposals` WHERE proposal_id = \\?.+FOR UPDATE$"),
			args:    []driver.Value{int64(21)},
			columns: proposalColumns,
			rows: [][]driver.Value{{
				int64(21), int64(5), int64(7), models.RoleStudent,
				nil, nil,
				models.ProposalStatusPending, int64(0),
				nil, nil, nil, nil,
			}},
		},
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("UPDATE `project_proposals` SET `is_final_version`=\\? WHERE submitted_by = \\? AND proposal_id <> \\?"),
			args:    []driver.Value{false, int64(7), int64(21)},
			result:  scriptedResult{rowsAffected: 2},
		},
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("UPDATE `project_proposals` SET `is_final_version`=\\? WHERE proposal_id = \\?"),
			args:    []driver.Value{true, int64(21)},
			result:  scriptedResult{rowsAffected: 1},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	svc := &ProposalService{db: db}
	student := &models.User{UserID: 7, Role: models.RoleStudent}

	proposal, err := svc.markFinalTx(testSession(db), student, 21)
	if err != nil {
		t.Fatalf("mark final failed: %v", err)
	}
	if !proposal.IsFinalVersion {
		t.Fatalf("expected proposal to carry the final flag")
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestMarkFinalRefusedForNonSubmitter(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT \\* FROM `project_proposals` WHERE proposal_id = \\?.+FOR UPDATE$"),
			args:    []driver.Value{int64(21)},
			columns: proposalColumns,
			rows: [][]driver.Value{{
				int64(21), int64(5), int64(7), models.RoleStudent,
				nil, nil,
				models.ProposalStatusPending, int64(0),
				nil, nil, nil, nil,
			}},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	svc := &ProposalService{db: db}
	other := &models.User{UserID: 8, Role: models.RoleStudent}

	_, err := svc.markFinalTx(testSession(db), other, 21)
	var authErr *AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestRejectEditRestoresSnapshotExactly(t *testing.T) {
	snapshot := `{"co_supervisor_name":"Amel","co_supervisor_surname":"Haddad","additional_details":{"keywords":"iot"}}`

	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT \\* FROM `project_proposals` WHERE proposal_id = \\?.+FOR UPDATE$"),
			args:    []driver.Value{int64(31)},
			columns: proposalColumns,
			rows: [][]driver.Value{{
				int64(31), int64(5), int64(7), models.RoleStudent,
				"Karim", "Benali",
				models.ProposalStatusEdited, int64(0),
				int64(4), int64(0), snapshot, "please adjust scope",
			}},
		},
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("UPDATE `project_proposals` SET"),
			anyArgs: true,
			result:  scriptedResult{rowsAffected: 1},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	svc := &ProposalService{db: db}
	student := &models.User{UserID: 7, Role: models.RoleStudent}

	proposal, editorID, err := svc.respondToEditTx(testSession(db), student, 31, false, "keeping the original scope", false)
	if err != nil {
		t.Fatalf("reject edit failed: %v", err)
	}

	if editorID != 4 {
		t.Fatalf("expected editor 4, got %d", editorID)
	}
	if proposal.ProposalStatus != models.ProposalStatusPending {
		t.Fatalf("expected status back to Pending, got %s", proposal.ProposalStatus)
	}
	if proposal.CoSupervisorName == nil || *proposal.CoSupervisorName != "Amel" {
		t.Fatalf("expected co-supervisor name restored to Amel, got %v", proposal.CoSupervisorName)
	}
	if proposal.CoSupervisorSurname == nil || *proposal.CoSupervisorSurname != "Haddad" {
		t.Fatalf("expected co-supervisor surname restored to Haddad, got %v", proposal.CoSupervisorSurname)
	}
	if proposal.AdditionalDetails["keywords"] != "iot" {
		t.Fatalf("expected additional details restored, got %v", proposal.AdditionalDetails)
	}
	if proposal.EditedBy != nil || proposal.EditedAt != nil || proposal.EditAccepted != nil {
		t.Fatalf("expected edit metadata cleared")
	}
	if proposal.LastEditedVersion != nil {
		t.Fatalf("expected snapshot cleared after revert")
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestRespondToEditOnlySubmitterMayAnswer(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT \\* FROM `project_proposals` WHERE proposal_id = \\?.+FOR UPDATE$"),
			args:    []driver.Value{int64(31)},
			columns: proposalColumns,
			rows: [][]driver.Value{{
				int64(31), int64(5), int64(7), models.RoleStudent,
				nil, nil,
				models.ProposalStatusEdited, int64(0),
				int64(4), int64(0), nil, nil,
			}},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	svc := &ProposalService{db: db}
	stranger := &models.User{UserID: 99, Role: models.RoleStudent}

	_, _, err := svc.respondToEditTx(testSession(db), stranger, 31, true, "", false)
	var authErr *AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestSubmitEditRefusedOnFinalProposal(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT \\* FROM `project_proposals` WHERE proposal_id = \\?.+FOR UPDATE$"),
			args:    []driver.Value{int64(41)},
			columns: proposalColumns,
			rows: [][]driver.Value{{
				int64(41), int64(5), int64(7), models.RoleStudent,
				nil, nil,
				models.ProposalStatusPending, int64(1),
				nil, nil, nil, nil,
			}},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	svc := &ProposalService{db: db}
	teacher := &models.User{UserID: 4, Role: models.RoleTeacher}

	_, err := svc.submitEditTx(testSession(db), teacher, 41, &EditProposalRequest{Comment: "too late"})
	var stErr *StateError
	if !errors.As(err, &stErr) {
		t.Fatalf("expected StateError for final proposal, got %v", err)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

var projectColumns = []string{
	"project_id", "title", "type", "option", "status", "submitted_by",
}

func TestCreateTeacherProposal(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT \\* FROM `projects` WHERE project_id = \\?.+FOR UPDATE$"),
			args:    []driver.Value{int64(5)},
			columns: projectColumns,
			rows: [][]driver.Value{{
				int64(5), "Smart irrigation", models.ProjectTypeClassical, "GL",
				models.ProjectStatusProposed, int64(4),
			}},
		},
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT count\\(\\*\\) FROM `project_proposals` WHERE project_id = \\?"),
			args:    []driver.Value{int64(5), models.ProposalStatusRejected},
			columns: []string{"count(*)"},
			rows:    [][]driver.Value{{int64(0)}},
		},
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT count\\(\\*\\) FROM `project_proposals` WHERE submitted_by = \\?"),
			args:    []driver.Value{int64(4), models.ProposalStatusRejected},
			columns: []string{"count(*)"},
			rows:    [][]driver.Value{{int64(0)}},
		},
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("INSERT INTO `project_proposals`"),
			anyArgs: true,
			result:  scriptedResult{lastInsertID: 77, rowsAffected: 1},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	svc := &ProposalService{db: db}
	teacher := &models.User{UserID: 4, Role: models.RoleTeacher}

	proposal, err := svc.createTx(testSession(db), teacher, &CreateProposalRequest{ProjectID: 5})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if proposal.ProposalID != 77 {
		t.Fatalf("expected assigned id 77, got %d", proposal.ProposalID)
	}
	if proposal.ProposalStatus != models.ProposalStatusPending {
		t.Fatalf("expected Pending, got %s", proposal.ProposalStatus)
	}
	if proposal.ProposalOrder != 1 {
		t.Fatalf("expected first proposal order 1, got %d", proposal.ProposalOrder)
	}
	if proposal.ProposerType != models.RoleTeacher {
		t.Fatalf("expected proposer type Teacher, got %s", proposal.ProposerType)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestCreateRefusedWhenProjectHasActiveProposal(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT \\* FROM `projects` WHERE project_id = \\?.+FOR UPDATE$"),
			args:    []driver.Value{int64(5)},
			columns: projectColumns,
			rows: [][]driver.Value{{
				int64(5), "Smart irrigation", models.ProjectTypeClassical, "GL",
				models.ProjectStatusProposed, int64(4),
			}},
		},
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT count\\(\\*\\) FROM `project_proposals` WHERE project_id = \\?"),
			args:    []driver.Value{int64(5), models.ProposalStatusRejected},
			columns: []string{"count(*)"},
			rows:    [][]driver.Value{{int64(1)}},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	svc := &ProposalService{db: db}
	teacher := &models.User{UserID: 9, Role: models.RoleTeacher}

	_, err := svc.createTx(testSession(db), teacher, &CreateProposalRequest{ProjectID: 5})
	var stErr *StateError
	if !errors.As(err, &stErr) {
		t.Fatalf("expected StateError for a project under negotiation, got %v", err)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestCreateRefusedOnValidatedProject(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT \\* FROM `projects` WHERE project_id = \\?.+FOR UPDATE$"),
			args:    []driver.Value{int64(5)},
			columns: projectColumns,
			rows: [][]driver.Value{{
				int64(5), "Smart irrigation", models.ProjectTypeClassical, "GL",
				models.ProjectStatusValidated, int64(4),
			}},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	svc := &ProposalService{db: db}
	teacher := &models.User{UserID: 9, Role: models.RoleTeacher}

	_, err := svc.createTx(testSession(db), teacher, &CreateProposalRequest{ProjectID: 5})
	var stErr *StateError
	if !errors.As(err, &stErr) {
		t.Fatalf("expected StateError for a validated project, got %v", err)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestCreateRefusedWhenPartnerMissing(t *testing.T) {
	partnerID := 8
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT \\* FROM `projects` WHERE project_id = \\?.+FOR UPDATE$"),
			args:    []driver.Value{int64(5)},
			columns: projectColumns,
			rows: [][]driver.Value{{
				int64(5), "Crop disease detector", models.ProjectTypeInnovative, "IA",
				models.ProjectStatusProposed, int64(7),
			}},
		},
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT count\\(\\*\\) FROM `project_proposals` WHERE submitted_by = \\?"),
			args:    []driver.Value{int64(7), models.ProposalStatusRejected},
			columns: []string{"count(*)"},
			rows:    [][]driver.Value{{int64(0)}},
		},
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT \\* FROM `students` WHERE student_id = \\?"),
			args:    []driver.Value{int64(8)},
			columns: []string{"student_id", "user_id"},
			rows:    nil,
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	svc := &ProposalService{db: db}
	student := &models.User{
		UserID:  7,
		Role:    models.RoleStudent,
		Student: &models.Student{StudentID: 7, UserID: 7},
	}

	_, err := svc.createTx(testSession(db), student, &CreateProposalRequest{ProjectID: 5, PartnerID: &partnerID})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if vErr.Field != "partner_id" {
		t.Fatalf("expected field partner_id, got %q", vErr.Field)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}

func TestSubmitEditSnapshotsBeforeApplyingChanges(t *testing.T) {
	steps := []*queryStep{
		{
			kind:    kindQuery,
			pattern: regexp.MustCompile("SELECT \\* FROM `project_proposals` WHERE proposal_id = \\?.+FOR UPDATE$"),
			args:    []driver.Value{int64(51)},
			columns: proposalColumns,
			rows: [][]driver.Value{{
				int64(51), int64(5), int64(7), models.RoleStudent,
				"Amel", "Haddad",
				models.ProposalStatusPending, int64(0),
				nil, nil, nil, nil,
			}},
		},
		{
			kind:    kindExec,
			pattern: regexp.MustCompile("UPDATE `project_proposals` SET"),
			anyArgs: true,
			result:  scriptedResult{rowsAffected: 1},
		},
	}

	db, state, cleanup := newScriptedGormDB(t, steps)
	defer cleanup()

	svc := &ProposalService{db: db}
	teacher := &models.User{UserID: 4, Role: models.RoleTeacher}

	proposal, err := svc.submitEditTx(testSession(db), teacher, 51, &EditProposalRequest{
		CoSupervisorName: strPtr("Karim"),
		Comment:          "supervisor reassignment",
	})
	if err != nil {
		t.Fatalf("submit edit failed: %v", err)
	}

	if proposal.ProposalStatus != models.ProposalStatusEdited {
		t.Fatalf("expected Edited, got %s", proposal.ProposalStatus)
	}
	if proposal.CoSupervisorName == nil || *proposal.CoSupervisorName != "Karim" {
		t.Fatalf("expected edit applied, got %v", proposal.CoSupervisorName)
	}
	if proposal.EditAccepted == nil || *proposal.EditAccepted {
		t.Fatalf("expected edit awaiting the submitter's answer")
	}
	if proposal.LastEditedVersion["co_supervisor_name"] != "Amel" {
		t.Fatalf("expected snapshot to hold the pre-edit name, got %v", proposal.LastEditedVersion)
	}

	if err := state.verifyComplete(); err != nil {
		t.Fatalf("%v", err)
	}
}
