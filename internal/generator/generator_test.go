package generator

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/reportworks/internal/domain"
)

const testSchema = "tenant_a"

// fixture holds the ids of the seeded tenant rows so tests can filter on
// them.
type fixture struct {
	db            *sql.DB
	institutionID uuid.UUID
	class5        uuid.UUID
	class6        uuid.UUID
	sectionA      uuid.UUID
	sectionB      uuid.UUID
	exam          uuid.UUID
	students      map[string]uuid.UUID // admission_no -> id
}

// setupFixture builds an in-memory tenant schema with a small but realistic
// roster: two classes, marks for one exam, payments, and outstanding
// invoices. One student has a dangling class link and one belongs to a
// different institution; neither should ever surface in a report.
func setupFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	ddl := []string{
		`ATTACH DATABASE ':memory:' AS ` + testSchema,
		`CREATE TABLE ` + testSchema + `.classes (id TEXT PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE ` + testSchema + `.sections (id TEXT PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE ` + testSchema + `.subjects (id TEXT PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE ` + testSchema + `.exams (id TEXT PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE ` + testSchema + `.students (
			id TEXT PRIMARY KEY,
			institution_id TEXT NOT NULL,
			admission_no TEXT NOT NULL,
			roll_no TEXT NOT NULL,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			gender TEXT NOT NULL,
			category TEXT NOT NULL,
			status TEXT NOT NULL,
			class_id TEXT NOT NULL,
			section_id TEXT NOT NULL,
			phone TEXT NOT NULL
		)`,
		`CREATE TABLE ` + testSchema + `.attendance_records (
			id TEXT PRIMARY KEY,
			student_id TEXT NOT NULL,
			class_id TEXT NOT NULL,
			section_id TEXT NOT NULL,
			attendance_date TEXT NOT NULL,
			status TEXT NOT NULL,
			remarks TEXT
		)`,
		`CREATE TABLE ` + testSchema + `.fee_payments (
			id TEXT PRIMARY KEY,
			student_id TEXT NOT NULL,
			receipt_no TEXT NOT NULL,
			amount REAL NOT NULL,
			payment_mode TEXT NOT NULL,
			payment_date TEXT NOT NULL
		)`,
		`CREATE TABLE ` + testSchema + `.fee_invoices (
			id TEXT PRIMARY KEY,
			student_id TEXT NOT NULL,
			fee_head TEXT NOT NULL,
			due_date TEXT NOT NULL,
			amount REAL NOT NULL,
			paid_amount REAL NOT NULL
		)`,
		`CREATE TABLE ` + testSchema + `.exam_marks (
			id TEXT PRIMARY KEY,
			exam_id TEXT NOT NULL,
			student_id TEXT NOT NULL,
			subject_id TEXT NOT NULL,
			marks_obtained REAL NOT NULL,
			max_marks REAL NOT NULL
		)`,
	}
	for _, stmt := range ddl {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}

	f := &fixture{
		db:            db,
		institutionID: uuid.New(),
		class5:        uuid.New(),
		class6:        uuid.New(),
		sectionA:      uuid.New(),
		sectionB:      uuid.New(),
		exam:          uuid.New(),
		students:      make(map[string]uuid.UUID),
	}

	exec := func(query string, args ...any) {
		_, err := db.Exec(query, args...)
		require.NoError(t, err)
	}

	exec(`INSERT INTO `+testSchema+`.classes VALUES (?, ?), (?, ?)`,
		f.class5.String(), "Class 5", f.class6.String(), "Class 6")
	exec(`INSERT INTO `+testSchema+`.sections VALUES (?, ?), (?, ?)`,
		f.sectionA.String(), "A", f.sectionB.String(), "B")
	exec(`INSERT INTO `+testSchema+`.exams VALUES (?, ?)`, f.exam.String(), "Midterm")

	mathID, scienceID := uuid.New(), uuid.New()
	exec(`INSERT INTO `+testSchema+`.subjects VALUES (?, ?), (?, ?)`,
		mathID.String(), "Math", scienceID.String(), "Science")

	addStudent := func(admissionNo, rollNo, first, last, gender, category, status string, classID, sectionID uuid.UUID, institutionID uuid.UUID) uuid.UUID {
		id := uuid.New()
		f.students[admissionNo] = id
		exec(`INSERT INTO `+testSchema+`.students VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id.String(), institutionID.String(), admissionNo, rollNo, first, last,
			gender, category, status, classID.String(), sectionID.String(), "9800000000")
		return id
	}

	s1 := addStudent("ADM001", "1", "Asha", "Verma", "female", "general", "active", f.class5, f.sectionA, f.institutionID)
	s2 := addStudent("ADM002", "2", "Rohan", "Gupta", "male", "general", "active", f.class5, f.sectionA, f.institutionID)
	s3 := addStudent("ADM003", "1", "Meera", "Iyer", "female", "obc", "active", f.class6, f.sectionB, f.institutionID)
	addStudent("ADM004", "3", "Karan", "Shah", "male", "general", "inactive", f.class5, f.sectionA, f.institutionID)
	// Dangling class link: invisible to every report.
	addStudent("ADM005", "4", "Ghost", "Row", "male", "general", "active", uuid.New(), f.sectionA, f.institutionID)
	// Different institution sharing the schema: also invisible.
	addStudent("ADM900", "1", "Other", "School", "female", "general", "active", f.class5, f.sectionA, uuid.New())

	addMark := func(id string, student uuid.UUID, subject uuid.UUID, obtained, max float64) {
		exec(`INSERT INTO `+testSchema+`.exam_marks VALUES (?, ?, ?, ?, ?, ?)`,
			id, f.exam.String(), student.String(), subject.String(), obtained, max)
	}
	addMark("m1", s1, mathID, 90, 100)
	addMark("m2", s1, scienceID, 80, 100)
	addMark("m3", s2, mathID, 85, 100)
	addMark("m4", s2, scienceID, 84, 100)
	addMark("m5", s3, mathID, 95, 100)

	exec(`INSERT INTO `+testSchema+`.attendance_records VALUES
		(?, ?, ?, ?, ?, ?, ?), (?, ?, ?, ?, ?, ?, ?), (?, ?, ?, ?, ?, ?, ?)`,
		"a1", s1.String(), f.class5.String(), f.sectionA.String(), "2026-08-01", "present", nil,
		"a2", s2.String(), f.class5.String(), f.sectionA.String(), "2026-08-01", "absent", "sick leave",
		"a3", s1.String(), f.class5.String(), f.sectionA.String(), "2026-08-02", "present", nil,
	)

	exec(`INSERT INTO `+testSchema+`.fee_payments VALUES
		(?, ?, ?, ?, ?, ?), (?, ?, ?, ?, ?, ?)`,
		"p1", s1.String(), "RCP-001", 400.0, "cash", "2026-07-01",
		"p2", s2.String(), "RCP-002", 1000.0, "upi", "2026-07-05",
	)

	exec(`INSERT INTO `+testSchema+`.fee_invoices VALUES
		(?, ?, ?, ?, ?, ?), (?, ?, ?, ?, ?, ?), (?, ?, ?, ?, ?, ?)`,
		"i1", s1.String(), "Tuition", "2026-01-10", 1000.0, 400.0,
		"i2", s1.String(), "Transport", "2026-01-12", 500.0, 500.0, // fully paid
		"i3", s2.String(), "Tuition", "2026-01-15", 1000.0, 0.0,
	)

	return f
}

func (f *fixture) job(reportType domain.ReportType, filters domain.Filters) *domain.ReportJob {
	return &domain.ReportJob{
		ID:            uuid.New(),
		InstitutionID: f.institutionID,
		ReportType:    reportType,
		Filters:       filters,
		RequestedBy:   uuid.New(),
	}
}

func genContext(chunkSize, maxRows int) Context {
	return Context{Schema: testSchema, ChunkSize: chunkSize, MaxRows: maxRows}
}

func TestRegistry_CoversAllReportTypes(t *testing.T) {
	reg := Registry()
	for _, rt := range domain.AllReportTypes() {
		assert.Contains(t, reg, rt)
	}
	assert.Len(t, reg, len(domain.AllReportTypes()))
}

func TestTableRef_RejectsInvalidSchema(t *testing.T) {
	_, err := tableRef("bad-schema", "students")
	assert.Error(t, err)

	ref, err := tableRef("tenant_a", "students")
	require.NoError(t, err)
	assert.Equal(t, `"tenant_a".students`, ref)
}

func TestStudentList(t *testing.T) {
	f := setupFixture(t)

	ds, err := StudentList(context.Background(), f.db, f.job(domain.ReportTypeStudentList, nil), genContext(1000, 0))
	require.NoError(t, err)

	assert.Equal(t, "Student List", ds.Title)
	require.Len(t, ds.Rows, 4, "dangling links and other institutions stay out")
	assert.False(t, ds.Truncated)

	// Ordered by class, section, roll number.
	assert.Equal(t, "ADM001", ds.Rows[0][0])
	assert.Equal(t, "Asha Verma", ds.Rows[0][2])
	assert.Equal(t, "ADM002", ds.Rows[1][0])
	assert.Equal(t, "ADM004", ds.Rows[2][0])
	assert.Equal(t, "ADM003", ds.Rows[3][0])
	assert.Equal(t, "Class 6", ds.Rows[3][3])
}

func TestStudentList_Filters(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	ds, err := StudentList(ctx, f.db, f.job(domain.ReportTypeStudentList,
		domain.Filters{domain.FilterStatus: "active"}), genContext(1000, 0))
	require.NoError(t, err)
	assert.Len(t, ds.Rows, 3)

	ds, err = StudentList(ctx, f.db, f.job(domain.ReportTypeStudentList,
		domain.Filters{domain.FilterGender: "female"}), genContext(1000, 0))
	require.NoError(t, err)
	require.Len(t, ds.Rows, 2)

	ds, err = StudentList(ctx, f.db, f.job(domain.ReportTypeStudentList,
		domain.Filters{domain.FilterClassID: f.class6.String()}), genContext(1000, 0))
	require.NoError(t, err)
	require.Len(t, ds.Rows, 1)
	assert.Equal(t, "ADM003", ds.Rows[0][0])
}

func TestStudentList_ChunkingMatchesSinglePage(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	job := f.job(domain.ReportTypeStudentList, nil)

	single, err := StudentList(ctx, f.db, job, genContext(1000, 0))
	require.NoError(t, err)
	chunked, err := StudentList(ctx, f.db, job, genContext(1, 0))
	require.NoError(t, err)

	assert.Equal(t, single.Rows, chunked.Rows)
}

func TestStudentList_RowCap(t *testing.T) {
	f := setupFixture(t)

	ds, err := StudentList(context.Background(), f.db, f.job(domain.ReportTypeStudentList, nil), genContext(1000, 2))
	require.NoError(t, err)
	assert.Len(t, ds.Rows, 2)
	assert.True(t, ds.Truncated)
}

func TestAttendanceRegister(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	ds, err := AttendanceRegister(ctx, f.db, f.job(domain.ReportTypeAttendanceRegister, nil), genContext(1000, 0))
	require.NoError(t, err)
	assert.Equal(t, "Attendance Register", ds.Title)
	require.Len(t, ds.Rows, 3)
	assert.Equal(t, "2026-08-01", ds.Rows[0][0])
	assert.Equal(t, "sick leave", ds.Rows[1][6])
	assert.Equal(t, "", ds.Rows[0][6], "null remarks render empty")

	ds, err = AttendanceRegister(ctx, f.db, f.job(domain.ReportTypeAttendanceRegister,
		domain.Filters{domain.FilterDateFrom: "2026-08-02"}), genContext(1000, 0))
	require.NoError(t, err)
	require.Len(t, ds.Rows, 1)
	assert.Equal(t, "2026-08-02", ds.Rows[0][0])

	ds, err = AttendanceRegister(ctx, f.db, f.job(domain.ReportTypeAttendanceRegister,
		domain.Filters{domain.FilterStatus: "absent"}), genContext(1000, 0))
	require.NoError(t, err)
	require.Len(t, ds.Rows, 1)
	assert.Equal(t, "ADM002", ds.Rows[0][1])
}

func TestAttendanceRegister_MonthWindow(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	// One record outside the seeded August window.
	_, err := f.db.Exec(`INSERT INTO `+testSchema+`.attendance_records VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"a4", f.students["ADM001"].String(), f.class5.String(), f.sectionA.String(),
		"2026-07-15", "present", nil)
	require.NoError(t, err)

	// month/year arrive as JSON numbers, i.e. float64.
	ds, err := AttendanceRegister(ctx, f.db, f.job(domain.ReportTypeAttendanceRegister,
		domain.Filters{domain.FilterMonth: float64(8), domain.FilterYear: float64(2026)}), genContext(1000, 0))
	require.NoError(t, err)
	require.Len(t, ds.Rows, 3)
	assert.Equal(t, "2026-08-01", ds.Rows[0][0])

	ds, err = AttendanceRegister(ctx, f.db, f.job(domain.ReportTypeAttendanceRegister,
		domain.Filters{domain.FilterMonth: float64(7), domain.FilterYear: float64(2026)}), genContext(1000, 0))
	require.NoError(t, err)
	require.Len(t, ds.Rows, 1)
	assert.Equal(t, "2026-07-15", ds.Rows[0][0])

	// Year alone spans the whole calendar year.
	ds, err = AttendanceRegister(ctx, f.db, f.job(domain.ReportTypeAttendanceRegister,
		domain.Filters{domain.FilterYear: float64(2026)}), genContext(1000, 0))
	require.NoError(t, err)
	assert.Len(t, ds.Rows, 4)

	ds, err = AttendanceRegister(ctx, f.db, f.job(domain.ReportTypeAttendanceRegister,
		domain.Filters{domain.FilterMonth: float64(8), domain.FilterYear: float64(2025)}), genContext(1000, 0))
	require.NoError(t, err)
	assert.Empty(t, ds.Rows)
}

func TestMonthWindow(t *testing.T) {
	tests := []struct {
		name    string
		filters domain.Filters
		from    string
		to      string
	}{
		{"month and year", domain.Filters{domain.FilterMonth: 6, domain.FilterYear: 2024}, "2024-06-01", "2024-06-30"},
		{"december", domain.Filters{domain.FilterMonth: 12, domain.FilterYear: 2024}, "2024-12-01", "2024-12-31"},
		{"leap february", domain.Filters{domain.FilterMonth: 2, domain.FilterYear: 2024}, "2024-02-01", "2024-02-29"},
		{"year only", domain.Filters{domain.FilterYear: 2024}, "2024-01-01", "2024-12-31"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to, ok := monthWindow(tt.filters)
			require.True(t, ok)
			assert.Equal(t, tt.from, from)
			assert.Equal(t, tt.to, to)
		})
	}

	_, _, ok := monthWindow(domain.Filters{})
	assert.False(t, ok)
}

func TestFeeCollection(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	ds, err := FeeCollection(ctx, f.db, f.job(domain.ReportTypeFeeCollection, nil), genContext(1000, 0))
	require.NoError(t, err)
	assert.Equal(t, "Fee Collection Report", ds.Title)
	require.Len(t, ds.Rows, 3, "two payments plus the total row")
	assert.Equal(t, "RCP-001", ds.Rows[0][0])
	assert.Equal(t, "400.00", ds.Rows[0][6])

	totalRow := ds.Rows[len(ds.Rows)-1]
	assert.Equal(t, "Total", totalRow[5])
	assert.Equal(t, "1400.00", totalRow[6])

	ds, err = FeeCollection(ctx, f.db, f.job(domain.ReportTypeFeeCollection,
		domain.Filters{domain.FilterPaymentMode: "upi"}), genContext(1000, 0))
	require.NoError(t, err)
	require.Len(t, ds.Rows, 2)
	assert.Equal(t, "1000.00", ds.Rows[1][6])
}

func TestFeeCollection_RowCapOmitsTotal(t *testing.T) {
	f := setupFixture(t)

	ds, err := FeeCollection(context.Background(), f.db, f.job(domain.ReportTypeFeeCollection, nil), genContext(1000, 1))
	require.NoError(t, err)
	require.Len(t, ds.Rows, 1, "capped output holds exactly the cap, no total row")
	assert.True(t, ds.Truncated)
	assert.Equal(t, "RCP-001", ds.Rows[0][0])
	assert.NotEqual(t, "Total", ds.Rows[0][5])
}

func TestFeeDues(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	ds, err := FeeDues(ctx, f.db, f.job(domain.ReportTypeFeeDues, nil), genContext(1000, 0))
	require.NoError(t, err)
	assert.Equal(t, "Fee Dues Report", ds.Title)
	require.Len(t, ds.Rows, 3, "fully paid invoices are excluded; total row appended")

	assert.Equal(t, "ADM001", ds.Rows[0][0])
	assert.Equal(t, "600.00", ds.Rows[0][8])
	assert.Equal(t, "1000.00", ds.Rows[1][8])

	totalRow := ds.Rows[len(ds.Rows)-1]
	assert.Equal(t, "Total Due", totalRow[7])
	assert.Equal(t, "1600.00", totalRow[8])
}

func TestFeeDues_MinDueAmount(t *testing.T) {
	f := setupFixture(t)

	ds, err := FeeDues(context.Background(), f.db, f.job(domain.ReportTypeFeeDues,
		domain.Filters{domain.FilterMinDueAmount: 700.0}), genContext(1000, 0))
	require.NoError(t, err)
	require.Len(t, ds.Rows, 2)
	assert.Equal(t, "ADM002", ds.Rows[0][0])
	assert.Equal(t, "1000.00", ds.Rows[len(ds.Rows)-1][8])
}

func TestFeeDues_RowCapOmitsTotal(t *testing.T) {
	f := setupFixture(t)

	ds, err := FeeDues(context.Background(), f.db, f.job(domain.ReportTypeFeeDues, nil), genContext(1000, 2))
	require.NoError(t, err)
	require.Len(t, ds.Rows, 2, "capped output holds exactly the cap, no total row")
	assert.True(t, ds.Truncated)
	for _, row := range ds.Rows {
		assert.NotEqual(t, "Total Due", row[7])
	}
}

func TestExamResults(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	_, err := ExamResults(ctx, f.db, f.job(domain.ReportTypeExamResults, nil), genContext(1000, 0))
	assert.Error(t, err, "exam_id filter is mandatory")

	ds, err := ExamResults(ctx, f.db, f.job(domain.ReportTypeExamResults,
		domain.Filters{domain.FilterExamID: f.exam.String()}), genContext(1000, 0))
	require.NoError(t, err)
	assert.Equal(t, "Exam Results: Midterm", ds.Title)
	require.Len(t, ds.Rows, 5)

	// Ordered by class, admission number, subject.
	assert.Equal(t, []string{"ADM001", "Asha Verma", "Class 5", "Math", "90.00", "100.00", "90.00"}, ds.Rows[0])
	assert.Equal(t, "Science", ds.Rows[1][3])
	assert.Equal(t, "ADM003", ds.Rows[4][0])
}

func TestExamToppers(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	_, err := ExamToppers(ctx, f.db, f.job(domain.ReportTypeExamToppers, nil), genContext(1000, 0))
	assert.Error(t, err, "exam_id filter is mandatory")

	// ChunkSize 1 forces per-student aggregation across many pages.
	ds, err := ExamToppers(ctx, f.db, f.job(domain.ReportTypeExamToppers,
		domain.Filters{domain.FilterExamID: f.exam.String()}), genContext(1, 0))
	require.NoError(t, err)

	assert.Equal(t, "Exam Toppers: Midterm", ds.Title)
	require.Len(t, ds.Rows, 3)

	assert.Equal(t, []string{"1", "ADM001", "Asha Verma", "Class 5", "170.00", "200.00", "85.00"}, ds.Rows[0])
	assert.Equal(t, []string{"2", "ADM002", "Rohan Gupta", "Class 5", "169.00", "200.00", "84.50"}, ds.Rows[1])
	assert.Equal(t, []string{"3", "ADM003", "Meera Iyer", "Class 6", "95.00", "100.00", "95.00"}, ds.Rows[2])
}

func TestExamToppers_ClassFilter(t *testing.T) {
	f := setupFixture(t)

	ds, err := ExamToppers(context.Background(), f.db, f.job(domain.ReportTypeExamToppers,
		domain.Filters{
			domain.FilterExamID:  f.exam.String(),
			domain.FilterClassID: f.class6.String(),
		}), genContext(1000, 0))
	require.NoError(t, err)
	require.Len(t, ds.Rows, 1)
	assert.Equal(t, "ADM003", ds.Rows[0][1])
}

func TestStudentStrength(t *testing.T) {
	f := setupFixture(t)

	ds, err := StudentStrength(context.Background(), f.db, f.job(domain.ReportTypeStudentStrength, nil), genContext(2, 0))
	require.NoError(t, err)

	assert.Equal(t, "Student Strength Report", ds.Title)
	require.Len(t, ds.Rows, 3, "two class-section rows plus grand total")

	// Only active students with resolvable links count.
	assert.Equal(t, []string{"Class 5", "A", "1", "1", "0", "2"}, ds.Rows[0])
	assert.Equal(t, []string{"Class 6", "B", "0", "1", "0", "1"}, ds.Rows[1])
	assert.Equal(t, []string{"Total", "", "1", "2", "0", "3"}, ds.Rows[2])
}

func TestGenerator_CancelledContext(t *testing.T) {
	f := setupFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := StudentList(ctx, f.db, f.job(domain.ReportTypeStudentList, nil), genContext(1000, 0))
	assert.ErrorIs(t, err, context.Canceled)
}
