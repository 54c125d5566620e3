package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newRouteService(t *testing.T) (*RouteService, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return NewRouteService(repository.NewRepositories(db), nil), db
}

func TestSplitOperations(t *testing.T) {
	cases := map[string][]string{
		"":                      nil,
		"   ":                   nil,
		"nan":                   nil,
		"NaN":                   nil,
		" , ,":                  nil,
		"Turning":               {"Turning"},
		" Turning , Milling ,,": {"Turning", "Milling"},
	}
	for in, want := range cases {
		assert.Equal(t, want, SplitOperations(in), "input %q", in)
	}
	assert.Equal(t, "Turning -> Milling", RouteName([]string{"Turning", "Milling"}))
}

func TestResolveBlankReturnsDefault(t *testing.T) {
	svc, db := newRouteService(t)
	ctx := context.Background()

	_, err := svc.Resolve(ctx, "")
	require.ErrorIs(t, err, ErrNoDefaultRoute)

	def := testutil.SeedDefaultRoute(t, db)
	for _, in := range []string{"", "   ", "nan", "NAN", " , "} {
		route, err := svc.Resolve(ctx, in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, def.ID, route.ID, "input %q", in)
		assert.True(t, route.IsDefault)
	}
}

func TestResolveDanglingDefault(t *testing.T) {
	svc, db := newRouteService(t)
	missing := uint(999)
	require.NoError(t, db.Create(&entity.SystemSetting{ID: entity.SystemSettingID, DefaultRouteID: &missing}).Error)

	_, err := svc.Resolve(context.Background(), "nan")
	assert.ErrorIs(t, err, ErrNoDefaultRoute)
}

func TestResolveIsIdempotent(t *testing.T) {
	svc, db := newRouteService(t)
	ctx := context.Background()

	first, err := svc.Resolve(ctx, "Turning, Milling")
	require.NoError(t, err)
	assert.Equal(t, "Turning -> Milling", first.Name)
	assert.False(t, first.IsDefault)
	assert.Equal(t, []string{"Turning", "Milling"}, first.StageNames())

	second, err := svc.Resolve(ctx, " Turning ,Milling, ")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	assert.EqualValues(t, 1, testutil.CountRows(t, db, &entity.RouteTemplate{}))
	assert.EqualValues(t, 2, testutil.CountRows(t, db, &entity.Stage{}))
	assert.EqualValues(t, 2, testutil.CountRows(t, db, &entity.RouteStage{}))

	stored, err := svc.Get(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, stored.Stages, 2)
	assert.Equal(t, 0, stored.Stages[0].Order)
	assert.Equal(t, "Turning", stored.Stages[0].Stage.Name)
	assert.Equal(t, 1, stored.Stages[1].Order)
	assert.Equal(t, "Milling", stored.Stages[1].Stage.Name)
}

func TestResolveReusesStagesCaseInsensitively(t *testing.T) {
	svc, db := newRouteService(t)
	ctx := context.Background()
	testutil.SeedRoute(t, db, "Turning", "Turning")
	testutil.SeedRoute(t, db, "Токарная", "Токарная")

	route, err := svc.Resolve(ctx, "turning, Welding, ТОКАРНАЯ")
	require.NoError(t, err)
	assert.Equal(t, "turning -> Welding -> ТОКАРНАЯ", route.Name)
	// 第一次出现的拼写保留
	assert.Equal(t, []string{"Turning", "Welding", "Токарная"}, route.StageNames())
	assert.EqualValues(t, 3, testutil.CountRows(t, db, &entity.Stage{}))
}

func TestResolveRepeatedStageInOneRoute(t *testing.T) {
	svc, db := newRouteService(t)

	route, err := svc.Resolve(context.Background(), "Turning, Inspection, turning")
	require.NoError(t, err)
	assert.Equal(t, []string{"Turning", "Inspection", "Turning"}, route.StageNames())
	assert.EqualValues(t, 2, testutil.CountRows(t, db, &entity.Stage{}))
	assert.EqualValues(t, 3, testutil.CountRows(t, db, &entity.RouteStage{}))
}

func TestRouteAdministration(t *testing.T) {
	svc, db := newRouteService(t)
	ctx := context.Background()

	_, err := svc.CreateTemplate(ctx, "Empty", []string{" ", ""})
	require.ErrorIs(t, err, ErrInvalidInput)

	def, err := svc.EnsureDefault(ctx, "Stock", []string{"Warehouse"})
	require.NoError(t, err)
	assert.True(t, def.IsDefault)

	again, err := svc.EnsureDefault(ctx, "Other", []string{"Other"})
	require.NoError(t, err)
	assert.Equal(t, def.ID, again.ID)

	custom, err := svc.CreateTemplate(ctx, "", []string{"Cutting", "Welding"})
	require.NoError(t, err)
	assert.Equal(t, "Cutting -> Welding", custom.Name)

	_, err = svc.CreateTemplate(ctx, "Cutting -> Welding", []string{"Cutting"})
	require.ErrorIs(t, err, ErrRouteExists)

	routes, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, routes, 2)
	for _, r := range routes {
		assert.Equal(t, r.ID == def.ID, r.IsDefault, r.Name)
	}

	_, err = svc.SetDefault(ctx, 12345)
	require.ErrorIs(t, err, ErrRouteNotFound)

	testutil.SeedPart(t, db, &entity.Part{PartID: "P-1", RouteTemplateID: &custom.ID})
	require.ErrorIs(t, svc.Delete(ctx, custom.ID), ErrRouteInUse)

	require.NoError(t, svc.Delete(ctx, def.ID))
	_, err = svc.FindDefault(ctx)
	require.ErrorIs(t, err, ErrNoDefaultRoute)
	require.ErrorIs(t, svc.Delete(ctx, def.ID), ErrRouteNotFound)

	_, err = svc.SetDefault(ctx, custom.ID)
	require.NoError(t, err)
	found, err := svc.FindDefault(ctx)
	require.NoError(t, err)
	assert.Equal(t, custom.ID, found.ID)
}

// openSharedFileDB 同一个 sqlite 文件上的两个独立连接，模拟两个并发的导入进程
func openSharedFileDB(t *testing.T) (primary, rival *gorm.DB) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "routes.db") + "?_busy_timeout=5000"
	open := func() *gorm.DB {
		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger:                                   logger.Default.LogMode(logger.Silent),
			TranslateError:                           true,
			DisableForeignKeyConstraintWhenMigrating: true,
		})
		require.NoError(t, err)
		sqlDB, err := db.DB()
		require.NoError(t, err)
		t.Cleanup(func() { sqlDB.Close() })
		return db
	}
	primary = open()
	require.NoError(t, primary.AutoMigrate(entity.AllModels()...))
	return primary, open()
}

// beforeInsertInto 在 primary 第一次向 table 插入之前执行 fn
func beforeInsertInto(t *testing.T, db *gorm.DB, table string, fn func()) {
	t.Helper()
	var once sync.Once
	err := db.Callback().Create().Before("gorm:create").Register("test:before_"+table, func(tx *gorm.DB) {
		if tx.Statement.Table == table {
			once.Do(fn)
		}
	})
	require.NoError(t, err)
}

func TestResolveRereadsRouteCreatedConcurrently(t *testing.T) {
	primaryDB, rivalDB := openSharedFileDB(t)
	svc := NewRouteService(repository.NewRepositories(primaryDB), nil)
	rival := NewRouteService(repository.NewRepositories(rivalDB), nil)
	ctx := context.Background()

	var (
		rivalRoute *entity.RouteTemplate
		rivalErr   error
	)
	beforeInsertInto(t, primaryDB, "route_templates", func() {
		rivalRoute, rivalErr = rival.Resolve(ctx, "Turning, Milling")
	})

	route, err := svc.Resolve(ctx, "Turning,Milling")
	require.NoError(t, rivalErr)
	require.NotNil(t, rivalRoute)
	require.NoError(t, err)

	assert.Equal(t, rivalRoute.ID, route.ID)
	assert.Equal(t, "Turning -> Milling", route.Name)
	assert.Equal(t, []string{"Turning", "Milling"}, route.StageNames())

	assert.Equal(t, int64(1), testutil.CountRows(t, primaryDB, &entity.RouteTemplate{}))
	assert.Equal(t, int64(2), testutil.CountRows(t, primaryDB, &entity.Stage{}))
	assert.Equal(t, int64(2), testutil.CountRows(t, primaryDB, &entity.RouteStage{}))
}

func TestFindOrCreateStageRereadsOtherSpelling(t *testing.T) {
	primaryDB, rivalDB := openSharedFileDB(t)
	svc := NewRouteService(repository.NewRepositories(primaryDB), nil)
	rivalRepos := repository.NewRepositories(rivalDB)
	ctx := context.Background()

	var (
		rivalStage = &entity.Stage{Name: "TURNING"}
		rivalErr   error
	)
	beforeInsertInto(t, primaryDB, "stages", func() {
		rivalErr = rivalRepos.Stage.Create(ctx, rivalStage)
	})

	stage, err := svc.findOrCreateStage(ctx, svc.repos, "turning")
	require.NoError(t, rivalErr)
	require.NoError(t, err)

	assert.Equal(t, rivalStage.ID, stage.ID)
	assert.Equal(t, "TURNING", stage.Name, "first spelling wins")
	assert.Equal(t, int64(1), testutil.CountRows(t, primaryDB, &entity.Stage{}))
}
