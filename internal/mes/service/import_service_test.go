package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type sentNotification struct {
	event, message, partID string
}

// recordingNotifier 记录收到的通知
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(eventType, message, partID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{eventType, message, partID})
}

func (n *recordingNotifier) events() []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentNotification(nil), n.sent...)
}

var testActor = Actor{ID: "test-user-001", Name: "Test Admin"}

func newImportService(t *testing.T) (*ImportService, *gorm.DB, *recordingNotifier) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	notifier := &recordingNotifier{}
	svc := NewImportService(repos, NewRouteService(repos, nil), notifier, EnglishVocabulary, nil)
	return svc, db, notifier
}

func csvFile(lines ...string) []byte {
	return []byte(strings.Join(lines, "\n") + "\n")
}

func findPart(t *testing.T, db *gorm.DB, id string) *entity.Part {
	t.Helper()
	var part entity.Part
	require.NoError(t, db.First(&part, "part_id = ?", id).Error, "part %s", id)
	return &part
}

func TestImportHierarchy(t *testing.T) {
	svc, db, notifier := newImportService(t)
	def := testutil.SeedDefaultRoute(t, db)

	data := csvFile(
		"Gearbox GB-2",
		"Designation,Name,Qty,Size,Operations,Material",
		"A1,,,,,",
		"P1,Pin,2,10x20,,Steel",
		"P2,Bolt,4,M8,,Steel",
		"A2,nan,,,,",
		"P3,Nut,8,M8,,Brass",
	)

	result, err := svc.Import(context.Background(), data, "gearbox.csv", testActor)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Added)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, "Gearbox GB-2", result.Product)

	for _, id := range []string{"A1", "A2"} {
		a := findPart(t, db, id)
		assert.Nil(t, a.ParentID, id)
		assert.Equal(t, "Assembly "+id, a.Name)
		assert.Equal(t, "Assembly", a.Material)
		assert.Equal(t, 1, a.QuantityTotal)
		require.NotNil(t, a.RouteTemplateID)
		assert.Equal(t, def.ID, *a.RouteTemplateID)
		assert.Equal(t, "Gearbox GB-2", a.ProductDesignation)
	}

	expectParent := map[string]string{"P1": "A1", "P2": "A1", "P3": "A2"}
	for id, parent := range expectParent {
		p := findPart(t, db, id)
		require.NotNil(t, p.ParentID, id)
		assert.Equal(t, parent, *p.ParentID, id)
		assert.Equal(t, entity.PartStatusInStock, p.CurrentStatus)
	}
	assert.Equal(t, "Pin", findPart(t, db, "P1").Name)
	assert.Equal(t, 8, findPart(t, db, "P3").QuantityTotal)

	assert.EqualValues(t, 5, testutil.CountRows(t, db, &entity.AuditLog{}))
	var logs []entity.AuditLog
	require.NoError(t, db.Where("part_id = ?", "P1").Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, entity.AuditActionCreate, logs[0].Action)
	assert.Equal(t, "Part imported from file gearbox.csv.", logs[0].Details)
	assert.Equal(t, testActor.ID, logs[0].UserID)

	sent := notifier.events()
	require.Len(t, sent, 1)
	assert.Equal(t, EventImportFinished, sent[0].event)
	assert.Equal(t, "User Test Admin imported 5 new records.", sent[0].message)
}

func TestImportDataRowBeforeAnyAssemblyHasNoParent(t *testing.T) {
	svc, db, _ := newImportService(t)
	testutil.SeedDefaultRoute(t, db)

	data := csvFile(
		"Designation,Name",
		"P0,Washer",
		"A1,",
		"P1,Pin",
	)
	result, err := svc.Import(context.Background(), data, "f.csv", testActor)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Added)
	assert.Nil(t, findPart(t, db, "P0").ParentID)
	assert.Equal(t, "A1", *findPart(t, db, "P1").ParentID)
	assert.Equal(t, "Untitled", result.Product)
}

func TestReimportIsNoop(t *testing.T) {
	svc, db, notifier := newImportService(t)
	testutil.SeedDefaultRoute(t, db)

	data := csvFile(
		"Designation,Name,Qty,Operations",
		"A1,,,",
		"P1,Pin,1,\"Turning, Milling\"",
		"P2,Bolt,1,Cutting",
	)
	first, err := svc.Import(context.Background(), data, "f.csv", testActor)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Added)

	parts := testutil.CountRows(t, db, &entity.Part{})
	routes := testutil.CountRows(t, db, &entity.RouteTemplate{})
	stages := testutil.CountRows(t, db, &entity.Stage{})

	second, err := svc.Import(context.Background(), data, "f.csv", testActor)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Added)
	assert.Equal(t, 3, second.Skipped)

	assert.Equal(t, parts, testutil.CountRows(t, db, &entity.Part{}))
	assert.Equal(t, routes, testutil.CountRows(t, db, &entity.RouteTemplate{}))
	assert.Equal(t, stages, testutil.CountRows(t, db, &entity.Stage{}))

	// 没有新增记录时不发通知
	assert.Len(t, notifier.events(), 1)
}

func TestImportExistingAssemblyIsNotOverwritten(t *testing.T) {
	svc, db, _ := newImportService(t)
	testutil.SeedDefaultRoute(t, db)
	testutil.SeedPart(t, db, &entity.Part{PartID: "A1", Name: "Frame", Material: "Aluminium"})

	data := csvFile(
		"Designation,Name",
		"A1,",
		"P1,Pin",
	)
	result, err := svc.Import(context.Background(), data, "f.csv", testActor)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 1, result.Skipped)

	a1 := findPart(t, db, "A1")
	assert.Equal(t, "Frame", a1.Name)
	assert.Equal(t, "Aluminium", a1.Material)
	assert.Equal(t, "A1", *findPart(t, db, "P1").ParentID)
}

func TestImportSkipRowsAndDuplicates(t *testing.T) {
	svc, db, _ := newImportService(t)
	testutil.SeedDefaultRoute(t, db)

	data := csvFile(
		"Designation,Name",
		",Orphan name",
		"nan,Ghost",
		"P1,Pin",
		"P1,Pin again",
	)
	result, err := svc.Import(context.Background(), data, "f.csv", testActor)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 3, result.Skipped)
	assert.Equal(t, "Pin", findPart(t, db, "P1").Name)
}

func TestImportBlankOperationsUsesDefault(t *testing.T) {
	svc, db, _ := newImportService(t)
	def := testutil.SeedDefaultRoute(t, db)

	data := csvFile(
		"Designation,Name,Operations",
		"P1,Pin,",
		"P2,Bolt,nan",
		"P3,Nut,   ",
	)
	result, err := svc.Import(context.Background(), data, "f.csv", testActor)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Added)
	for _, id := range []string{"P1", "P2", "P3"} {
		assert.Equal(t, def.ID, *findPart(t, db, id).RouteTemplateID, id)
	}
	assert.EqualValues(t, 1, testutil.CountRows(t, db, &entity.RouteTemplate{}))
}

func TestImportWithoutDefaultRoute(t *testing.T) {
	t.Run("blank operations", func(t *testing.T) {
		svc, db, notifier := newImportService(t)
		data := csvFile(
			"Designation,Name,Operations",
			"P1,Pin,Turning",
			"P2,Bolt,",
		)
		_, err := svc.Import(context.Background(), data, "f.csv", testActor)
		require.ErrorIs(t, err, ErrNoDefaultRoute)
		assert.EqualValues(t, 0, testutil.CountRows(t, db, &entity.Part{}))
		assert.EqualValues(t, 0, testutil.CountRows(t, db, &entity.AuditLog{}))
		assert.Empty(t, notifier.events())
	})

	t.Run("explicit operations only", func(t *testing.T) {
		svc, db, _ := newImportService(t)
		data := csvFile(
			"Designation,Name,Operations",
			"P1,Pin,Turning",
		)
		result, err := svc.Import(context.Background(), data, "f.csv", testActor)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Added)
		assert.EqualValues(t, 1, testutil.CountRows(t, db, &entity.Part{}))
	})

	t.Run("assembly needs default", func(t *testing.T) {
		svc, db, _ := newImportService(t)
		data := csvFile(
			"Designation,Name,Operations",
			"A1,,",
			"P1,Pin,Turning",
		)
		_, err := svc.Import(context.Background(), data, "f.csv", testActor)
		require.ErrorIs(t, err, ErrNoDefaultRoute)
		assert.EqualValues(t, 0, testutil.CountRows(t, db, &entity.Part{}))
	})
}

func TestImportKeepsAssembliesWhenLeafPassFails(t *testing.T) {
	svc, db, _ := newImportService(t)
	def := testutil.SeedDefaultRoute(t, db)

	data := csvFile(
		"Designation,Name,Operations",
		"A1,,",
		"P1,Pin,",
	)
	// 第二遍解析默认路线时失败
	require.NoError(t, db.Exec("CREATE TRIGGER clear_default AFTER INSERT ON parts WHEN NEW.part_id = 'A1' BEGIN UPDATE system_settings SET default_route_id = NULL; END").Error)

	_, err := svc.Import(context.Background(), data, "f.csv", testActor)
	require.ErrorIs(t, err, ErrNoDefaultRoute)

	a1 := findPart(t, db, "A1")
	assert.Equal(t, def.ID, *a1.RouteTemplateID)
	var count int64
	require.NoError(t, db.Model(&entity.Part{}).Where("part_id = ?", "P1").Count(&count).Error)
	assert.Zero(t, count)
}

func TestImportHeaderNotFound(t *testing.T) {
	svc, db, _ := newImportService(t)
	testutil.SeedDefaultRoute(t, db)

	data := csvFile(
		"Batch #3",
		"Code,Title",
		"P1,Pin",
	)
	_, err := svc.Import(context.Background(), data, "f.csv", testActor)
	require.ErrorIs(t, err, ErrHeaderNotFound)
	assert.EqualValues(t, 0, testutil.CountRows(t, db, &entity.Part{}))
}

func TestImportFileErrors(t *testing.T) {
	svc, _, _ := newImportService(t)

	_, err := svc.Import(context.Background(), []byte("x"), "parts.txt", testActor)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = svc.Import(context.Background(), []byte("not a zip"), "parts.xlsx", testActor)
	require.ErrorIs(t, err, ErrUnreadableFile)
	assert.Equal(t, ErrUnreadableFile.Error(), err.Error())

	result, err := svc.Import(context.Background(), nil, "empty.csv", testActor)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Added)
	assert.Equal(t, 0, result.Skipped)
}

func TestParseQuantity(t *testing.T) {
	cases := map[string]int{
		"5.0":  5,
		"5":    5,
		" 7 ":  7,
		"2,0":  2,
		"3.9":  3,
		"":     1,
		"nan":  1,
		"NaN":  1,
		"inf":  1,
		"many": 1,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseQuantity(in), "input %q", in)
	}
}

func TestImportEndToEnd(t *testing.T) {
	svc, db, _ := newImportService(t)
	testutil.SeedDefaultRoute(t, db)

	data := csvFile(
		"Batch #3,,,,,",
		",,,,,",
		"Designation,Name,Qty,Size,Operations,Material",
		"D-001,Shaft,5.0,20x100,\"Turning, Milling\",Steel 45",
		"D-002,Sleeve,2,30x40,\"Turning, Milling\",Bronze",
		"D-003,Flange,,100x10,Cutting,",
	)
	result, err := svc.Import(context.Background(), data, "batch3.csv", testActor)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Added)
	assert.Equal(t, 0, result.Skipped)

	shaft := findPart(t, db, "D-001")
	sleeve := findPart(t, db, "D-002")
	flange := findPart(t, db, "D-003")
	for _, p := range []*entity.Part{shaft, sleeve, flange} {
		assert.Equal(t, "Batch #3", p.ProductDesignation)
		assert.Nil(t, p.ParentID)
	}
	assert.Equal(t, 5, shaft.QuantityTotal)
	assert.Equal(t, "20x100", shaft.Size)
	assert.Equal(t, "Steel 45", shaft.Material)
	assert.Equal(t, 1, flange.QuantityTotal)
	assert.Equal(t, "Unspecified", flange.Material)

	var route entity.RouteTemplate
	require.NoError(t, db.First(&route, "name = ?", "Turning -> Milling").Error)
	assert.Equal(t, route.ID, *shaft.RouteTemplateID)
	assert.Equal(t, route.ID, *sleeve.RouteTemplateID)
	assert.NotEqual(t, route.ID, *flange.RouteTemplateID)

	var count int64
	require.NoError(t, db.Model(&entity.RouteTemplate{}).Where("name = ?", "Turning -> Milling").Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestImportRussianVocabulary(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	testutil.SeedDefaultRoute(t, db)
	svc := NewImportService(repos, NewRouteService(repos, nil), nil, VocabularyFor("ru", ""), nil)

	data := csvFile(
		"Редуктор РЦ-1",
		"Обозначение;Наименование;Кол-во;Размер;Операции;Прим.",
		"СБ-1;;;;;",
		"Д-1;Вал;3;20x100;Токарная, Фрезерная;",
	)
	result, err := svc.Import(context.Background(), data, "reducer.csv", testActor)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Added)

	asm := findPart(t, db, "СБ-1")
	assert.Equal(t, "Сборка СБ-1", asm.Name)
	assert.Equal(t, "Сборка", asm.Material)

	shaft := findPart(t, db, "Д-1")
	assert.Equal(t, "Не указан", shaft.Material)
	assert.Equal(t, "Редуктор РЦ-1", shaft.ProductDesignation)
	assert.Equal(t, "СБ-1", *shaft.ParentID)

	var route entity.RouteTemplate
	require.NoError(t, db.First(&route, "id = ?", *shaft.RouteTemplateID).Error)
	assert.Equal(t, "Токарная -> Фрезерная", route.Name)
}
