package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/diewo77/go-quotations/internal/cache"
	"github.com/diewo77/go-quotations/internal/db"
	"github.com/diewo77/go-quotations/internal/forms"
	"github.com/diewo77/go-quotations/internal/models"
	"github.com/diewo77/go-quotations/internal/storage"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	db         *gorm.DB
	cache      *cache.Cache
	store      storage.Store
	vendors    *VendorService
	itemTypes  *ItemTypeService
	rates      *ExchangeRateService
	quotations *QuotationService
	stats      *StatsService
	documents  *DocumentService
	settings   *SettingsService
	users      *UserService
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, _ := conn.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return conn
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn := setupTestDB(t)
	store, err := storage.NewLocalStore(t.TempDir(), "/files")
	if err != nil {
		t.Fatal(err)
	}
	return newTestEnvWithStore(t, conn, store)
}

func newTestEnvWithStore(t *testing.T, conn *gorm.DB, store storage.Store) *testEnv {
	c := cache.New(time.Minute)
	env := &testEnv{db: conn, cache: c, store: store}
	env.vendors = NewVendorService(conn, c)
	env.itemTypes = NewItemTypeService(conn, c)
	env.rates = NewExchangeRateService(conn, c)
	env.quotations = NewQuotationService(conn, c, store, env.vendors, env.itemTypes, env.rates)
	env.stats = NewStatsService(conn, c, env.rates)
	env.documents = NewDocumentService(conn, c, store)
	env.settings = NewSettingsService(conn, c, store)
	env.users = NewUserService(conn, c, store)
	return env
}

func createUser(t *testing.T, conn *gorm.DB, email, role string) *models.User {
	t.Helper()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	u := models.User{Email: email, Password: string(hash), Role: role, Approved: true}
	if err := conn.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return &u
}

func newForm(project string, items ...forms.Item) *forms.QuotationForm {
	return &forms.QuotationForm{
		ProjectName:        project,
		Date:               "2024-05-01",
		ValidityDate:       "2024-06-01",
		BudgetType:         models.BudgetMA,
		CurrencyType:       "usd",
		VendorCurrencyType: "usd",
		Items:              forms.NewItemList(items...),
	}
}

func TestSubmit_CreateStartsAsDraft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := createUser(t, env.db, "a@example.com", models.RoleUser)

	form := newForm("Tower",
		forms.Item{Name: "Cable", Quantity: 2, UnitPrice: 100, TypeName: "Hardware"},
		forms.Item{Name: "Install", Quantity: 1, UnitPrice: 50},
	)
	form.Discount = 20
	form.VendorName = "Acme"
	form.VendorCost = 120

	q, err := env.quotations.Submit(ctx, u.ID, form)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if q.Status != models.StatusDraft {
		t.Errorf("status = %s, want draft", q.Status)
	}
	if q.CreatedBy != u.ID {
		t.Errorf("created_by = %d, want %d", q.CreatedBy, u.ID)
	}
	if len(q.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(q.Items))
	}
	if q.Subtotal() != 250 || q.Total() != 230 {
		t.Errorf("subtotal/total = %v/%v, want 250/230", q.Subtotal(), q.Total())
	}
	if preview := form.Preview(); preview.Total != q.Total() {
		t.Errorf("preview total %v differs from stored %v", preview.Total, q.Total())
	}
	if q.Vendor == nil || q.Vendor.Name != "Acme" {
		t.Errorf("vendor = %+v", q.Vendor)
	}
	if q.Items[0].Type == nil || q.Items[0].Type.Name != "Hardware" {
		t.Errorf("item type = %+v", q.Items[0].Type)
	}
}

func TestSubmit_ValidationError(t *testing.T) {
	env := newTestEnv(t)
	form := newForm("", forms.Item{Name: ""})
	form.Discount = -1

	_, err := env.quotations.Submit(context.Background(), 1, form)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	for _, field := range []string{"project_name", "discount", "items[0].name"} {
		if verr.Violations[field] == "" {
			t.Errorf("missing violation for %s: %v", field, verr.Violations)
		}
	}
}

func TestSubmit_EditReconcilesItems(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := createUser(t, env.db, "a@example.com", models.RoleUser)

	q, err := env.quotations.Submit(ctx, u.ID, newForm("Tower",
		forms.Item{Name: "A", Quantity: 1, UnitPrice: 10},
		forms.Item{Name: "B", Quantity: 1, UnitPrice: 20},
	))
	if err != nil {
		t.Fatal(err)
	}
	keptID := q.Items[0].ID
	droppedID := q.Items[1].ID

	edit := forms.FormFromQuotation(q)
	list := forms.NewItemList(
		forms.Item{ID: keptID, Name: "A", Quantity: 3, UnitPrice: 10},
		forms.Item{Name: "C", Quantity: 2, UnitPrice: 5},
	)
	edit.Items = list
	edit.ProjectName = "Tower v2"

	updated, err := env.quotations.Submit(ctx, u.ID, edit)
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if updated.ProjectName != "Tower v2" {
		t.Errorf("project = %q", updated.ProjectName)
	}
	if updated.Version != q.Version+1 {
		t.Errorf("version = %d, want %d", updated.Version, q.Version+1)
	}
	if len(updated.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(updated.Items))
	}
	if updated.Items[0].ID != keptID || updated.Items[0].TotalPrice != 30 {
		t.Errorf("kept item = %+v", updated.Items[0])
	}
	if updated.Items[1].Name != "C" || updated.Items[1].TotalPrice != 10 {
		t.Errorf("new item = %+v", updated.Items[1])
	}
	var count int64
	env.db.Model(&models.QuotationItem{}).Where("id = ?", droppedID).Count(&count)
	if count != 0 {
		t.Error("dropped item still stored")
	}
	if updated.Status != models.StatusDraft {
		t.Errorf("status changed on edit: %s", updated.Status)
	}
}

func TestSubmit_EditToEmptyItemList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := createUser(t, env.db, "a@example.com", models.RoleUser)

	q, err := env.quotations.Submit(ctx, u.ID, newForm("Tower", forms.Item{Name: "A", Quantity: 1, UnitPrice: 10}))
	if err != nil {
		t.Fatal(err)
	}
	edit := forms.FormFromQuotation(q)
	edit.Items = forms.NewItemList()
	updated, err := env.quotations.Submit(ctx, u.ID, edit)
	if err != nil {
		t.Fatal(err)
	}
	if len(updated.Items) != 0 {
		t.Fatalf("items = %d, want 0", len(updated.Items))
	}
}

func TestSubmit_VersionConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := createUser(t, env.db, "a@example.com", models.RoleUser)

	q, err := env.quotations.Submit(ctx, u.ID, newForm("Tower", forms.Item{Name: "A", Quantity: 1, UnitPrice: 1}))
	if err != nil {
		t.Fatal(err)
	}
	first := forms.FormFromQuotation(q)
	stale := forms.FormFromQuotation(q)

	if _, err := env.quotations.Submit(ctx, u.ID, first); err != nil {
		t.Fatalf("first edit: %v", err)
	}
	if _, err := env.quotations.Submit(ctx, u.ID, stale); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale edit err = %v, want ErrVersionConflict", err)
	}

	stale.Version = 0
	if _, err := env.quotations.Submit(ctx, u.ID, stale); err != nil {
		t.Fatalf("versionless edit should win: %v", err)
	}
}

func TestUpdateHeader_VersionInPredicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := createUser(t, env.db, "a@example.com", models.RoleUser)

	q, err := env.quotations.Submit(ctx, u.ID, newForm("Tower", forms.Item{Name: "A", Quantity: 1, UnitPrice: 1}))
	if err != nil {
		t.Fatal(err)
	}
	read := q.Version

	// Another edit commits between our read and our write.
	if err := env.db.Model(&models.Quotation{}).Where("id = ?", q.ID).
		Updates(map[string]any{"project_name": "Theirs", "version": read + 1}).Error; err != nil {
		t.Fatal(err)
	}

	form := forms.FormFromQuotation(q)
	form.ProjectName = "Mine"
	if err := updateHeader(env.db, q.ID, read, form, nil); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("err = %v, want ErrVersionConflict", err)
	}
	var stored models.Quotation
	env.db.First(&stored, q.ID)
	if stored.ProjectName != "Theirs" || stored.Version != read+1 {
		t.Fatalf("stored = %q v%d, concurrent edit overwritten", stored.ProjectName, stored.Version)
	}

	if err := updateHeader(env.db, q.ID, read+1, form, nil); err != nil {
		t.Fatalf("current version: %v", err)
	}
	env.db.First(&stored, q.ID)
	if stored.ProjectName != "Mine" || stored.Version != read+2 {
		t.Fatalf("stored = %q v%d after update", stored.ProjectName, stored.Version)
	}
}

func TestSubmit_EditMissingQuotation(t *testing.T) {
	env := newTestEnv(t)
	form := newForm("Ghost")
	form.ID = 999
	if _, err := env.quotations.Submit(context.Background(), 1, form); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestVendorResolve_SingleRowPerName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v1, err := env.vendors.Resolve(ctx, "Acme", 1)
	if err != nil {
		t.Fatal(err)
	}
	v2, err := env.vendors.Resolve(ctx, " Acme ", 2)
	if err != nil {
		t.Fatal(err)
	}
	if v1.ID != v2.ID {
		t.Fatalf("ids differ: %d vs %d", v1.ID, v2.ID)
	}
	var count int64
	env.db.Model(&models.Vendor{}).Count(&count)
	if count != 1 {
		t.Fatalf("vendors = %d, want 1", count)
	}
	if v, err := env.vendors.Resolve(ctx, "  ", 1); v != nil || err != nil {
		t.Fatalf("blank name = %v, %v", v, err)
	}
}

func TestItemTypeResolve(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id1, err := env.itemTypes.Resolve(ctx, nil, "Hardware", 1)
	if err != nil || id1 == nil {
		t.Fatalf("create: %v %v", id1, err)
	}
	other, _ := env.itemTypes.Resolve(ctx, nil, "Labour", 1)

	// name wins over id
	id2, err := env.itemTypes.Resolve(ctx, other, "hardware", 1)
	if err != nil {
		t.Fatal(err)
	}
	if *id2 != *id1 {
		t.Fatalf("case-insensitive match failed: %d vs %d", *id2, *id1)
	}
	if id, _ := env.itemTypes.Resolve(ctx, nil, "  HARDWARE ", 1); id == nil || *id != *id1 {
		t.Fatalf("padded upper-case name resolved to %v", id)
	}

	id3, _ := env.itemTypes.Resolve(ctx, other, "", 1)
	if id3 == nil || *id3 != *other {
		t.Fatalf("id match = %v", id3)
	}
	missing := uint(999)
	if id, _ := env.itemTypes.Resolve(ctx, &missing, "", 1); id != nil {
		t.Fatalf("unknown id resolved to %d", *id)
	}

	types, err := env.itemTypes.List(ctx)
	if err != nil || len(types) != 2 {
		t.Fatalf("list = %v, %v", types, err)
	}
}

func TestList_ScopeAndPagination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := createUser(t, env.db, "a@example.com", models.RoleUser)
	b := createUser(t, env.db, "b@example.com", models.RoleUser)
	admin := createUser(t, env.db, "admin@example.com", models.RoleAdmin)

	for i := 0; i < 12; i++ {
		if _, err := env.quotations.Submit(ctx, a.ID, newForm(fmt.Sprintf("Project %02d", i))); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := env.quotations.Submit(ctx, b.ID, newForm("Other")); err != nil {
		t.Fatal(err)
	}

	viewer := Viewer{ID: a.ID}
	p1, err := env.quotations.List(ctx, viewer, Filter{}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(p1.Items) != 10 || p1.Total != 12 || p1.TotalPages != 2 {
		t.Fatalf("page 1 = %d items, total %d, pages %d", len(p1.Items), p1.Total, p1.TotalPages)
	}
	if p1.Items[0].ProjectName != "Project 11" {
		t.Errorf("first row = %q, want newest", p1.Items[0].ProjectName)
	}
	p2, _ := env.quotations.List(ctx, viewer, Filter{}, 2)
	if len(p2.Items) != 2 {
		t.Fatalf("page 2 = %d items", len(p2.Items))
	}

	// A user cannot widen their scope with the creator filter.
	scoped, _ := env.quotations.Count(ctx, viewer, Filter{CreatedBy: b.ID})
	if scoped != 12 {
		t.Errorf("user count with creator filter = %d, want 12", scoped)
	}

	all, _ := env.quotations.Count(ctx, Viewer{ID: admin.ID, Admin: true}, Filter{})
	if all != 13 {
		t.Errorf("admin count = %d, want 13", all)
	}
	onlyB, _ := env.quotations.Count(ctx, Viewer{ID: admin.ID, Admin: true}, Filter{CreatedBy: b.ID})
	if onlyB != 1 {
		t.Errorf("admin creator filter = %d, want 1", onlyB)
	}

	search, _ := env.quotations.Count(ctx, viewer, Filter{Search: "project 0"})
	if search != 10 {
		t.Errorf("search count = %d, want 10", search)
	}
	today := time.Now().Format("2006-01-02")
	inRange, _ := env.quotations.Count(ctx, viewer, Filter{From: today, To: today})
	if inRange != 12 {
		t.Errorf("date range count = %d, want 12", inRange)
	}
	past, _ := env.quotations.Count(ctx, viewer, Filter{To: "2000-01-01"})
	if past != 0 {
		t.Errorf("past range count = %d, want 0", past)
	}
}

func TestList_FiltersCombineWithAnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := createUser(t, env.db, "a@example.com", models.RoleUser)
	viewer := Viewer{ID: u.ID}

	submit := func(project, budget string, status models.QuotationStatus) {
		t.Helper()
		form := newForm(project)
		form.BudgetType = budget
		q, err := env.quotations.Submit(ctx, u.ID, form)
		if err != nil {
			t.Fatal(err)
		}
		if status != models.StatusDraft {
			if _, err := env.quotations.UpdateStatus(ctx, q.ID, status); err != nil {
				t.Fatal(err)
			}
		}
	}
	submit("Tower North", models.BudgetMA, models.StatusApproved)
	submit("Tower South", models.BudgetKorekCommunication, models.StatusApproved)
	submit("Tower East", models.BudgetMA, models.StatusDraft)
	submit("Bridge", models.BudgetMA, models.StatusApproved)

	today := time.Now().Format("2006-01-02")
	f := Filter{
		Search:     "tower",
		BudgetType: models.BudgetMA,
		Status:     string(models.StatusApproved),
		From:       today,
		To:         today,
	}
	page, err := env.quotations.List(ctx, viewer, f, 1)
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || len(page.Items) != 1 || page.Items[0].ProjectName != "Tower North" {
		t.Fatalf("combined filter = %+v", page.Items)
	}
	f.To = "2000-01-01"
	if n, _ := env.quotations.Count(ctx, viewer, f); n != 0 {
		t.Errorf("count with past range = %d, want 0", n)
	}
}

func TestSearch_WildcardsMatchLiterally(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := createUser(t, env.db, "a@example.com", models.RoleUser)
	viewer := Viewer{ID: u.ID}

	for _, name := range []string{"50% discount", "Tower", "Site_B"} {
		if _, err := env.quotations.Submit(ctx, u.ID, newForm(name)); err != nil {
			t.Fatal(err)
		}
	}
	cases := map[string]int64{"%": 1, "_": 1, "50%": 1, "e_b": 1, "e%b": 0}
	for search, want := range cases {
		if got, _ := env.quotations.Count(ctx, viewer, Filter{Search: search}); got != want {
			t.Errorf("search %q = %d, want %d", search, got, want)
		}
	}

	if _, err := env.vendors.Resolve(ctx, "Acme", u.ID); err != nil {
		t.Fatal(err)
	}
	if vs, _ := env.vendors.List(ctx, "%"); len(vs) != 0 {
		t.Errorf("vendor search %% = %v, want none", vs)
	}
	if vs, _ := env.vendors.List(ctx, "cm"); len(vs) != 1 {
		t.Errorf("vendor search cm = %v", vs)
	}
}

func TestList_RefetchUnchangedIsIdentical(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := createUser(t, env.db, "a@example.com", models.RoleUser)
	for i := 0; i < 3; i++ {
		env.quotations.Submit(ctx, u.ID, newForm(fmt.Sprintf("P%d", i), forms.Item{Name: "x", Quantity: 1, UnitPrice: 2}))
	}
	viewer := Viewer{ID: u.ID}
	first, err := env.quotations.List(ctx, viewer, Filter{}, 1)
	if err != nil {
		t.Fatal(err)
	}
	env.cache.InvalidateAll()
	second, err := env.quotations.List(ctx, viewer, Filter{}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Items) != len(second.Items) {
		t.Fatalf("lengths differ")
	}
	for i := range first.Items {
		if first.Items[i].ID != second.Items[i].ID || first.Items[i].Total != second.Items[i].Total {
			t.Fatalf("row %d differs: %+v vs %+v", i, first.Items[i], second.Items[i])
		}
	}
}

func TestList_VendorCostUsesLatestRate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := createUser(t, env.db, "a@example.com", models.RoleUser)
	form := newForm("Tower")
	form.VendorCost = 100
	if _, err := env.quotations.Submit(ctx, u.ID, form); err != nil {
		t.Fatal(err)
	}
	viewer := Viewer{ID: u.ID}

	p, _ := env.quotations.List(ctx, viewer, Filter{}, 1)
	if len(p.Warnings) == 0 || p.Items[0].VendorCostIQD != 100 || p.Items[0].Warning == "" {
		t.Fatalf("without rate: %+v warnings=%v", p.Items[0], p.Warnings)
	}

	if _, err := env.rates.Set(ctx, u.ID, "2024-04-01", 1300); err != nil {
		t.Fatal(err)
	}
	if _, err := env.rates.Set(ctx, u.ID, "2024-05-10", 1500); err != nil {
		t.Fatal(err)
	}
	p, _ = env.quotations.List(ctx, viewer, Filter{}, 1)
	if p.Rate != 1500 || p.Items[0].VendorCostIQD != 150000 {
		t.Fatalf("with rate: rate=%v cost=%v", p.Rate, p.Items[0].VendorCostIQD)
	}
}

func TestDetail_MissingRateForDate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := createUser(t, env.db, "a@example.com", models.RoleUser)
	form := newForm("Tower")
	form.VendorCost = 40
	q, err := env.quotations.Submit(ctx, u.ID, form)
	if err != nil {
		t.Fatal(err)
	}
	// A rate exists, but not for the quotation's date.
	env.rates.Set(ctx, u.ID, "2024-04-30", 1450)

	row, err := env.quotations.Detail(ctx, Viewer{ID: u.ID}, q.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if row.VendorCostIQD != 40 || row.Warning == "" {
		t.Fatalf("row = cost %v warning %q", row.VendorCostIQD, row.Warning)
	}

	env.rates.Set(ctx, u.ID, q.Date, 1450)
	row, _ = env.quotations.Detail(ctx, Viewer{ID: u.ID}, q.ID)
	if row.VendorCostIQD != 58000 || row.Warning != "" {
		t.Fatalf("row = cost %v warning %q", row.VendorCostIQD, row.Warning)
	}
}

func TestUpdateStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := createUser(t, env.db, "a@example.com", models.RoleUser)
	q, _ := env.quotations.Submit(ctx, u.ID, newForm("Tower"))

	if _, err := env.quotations.UpdateStatus(ctx, q.ID, "shipped"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("err = %v, want ErrInvalidStatus", err)
	}
	updated, err := env.quotations.UpdateStatus(ctx, q.ID, models.StatusApproved)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != models.StatusApproved || updated.Version != q.Version+1 {
		t.Fatalf("status=%s version=%d", updated.Status, updated.Version)
	}
	if _, err := env.quotations.UpdateStatus(ctx, 999, models.StatusPending); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteQuotation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := createUser(t, env.db, "a@example.com", models.RoleUser)
	q, _ := env.quotations.Submit(ctx, u.ID, newForm("Tower", forms.Item{Name: "A", Quantity: 1, UnitPrice: 1}))
	docs, err := env.documents.Upload(ctx, q.ID, u.ID, []FileUpload{{Name: "quote.pdf", Body: strings.NewReader("pdf")}})
	if err != nil {
		t.Fatal(err)
	}

	if err := env.quotations.Delete(ctx, q.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.quotations.Get(ctx, q.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete = %v", err)
	}
	var items int64
	env.db.Model(&models.QuotationItem{}).Where("quotation_id = ?", q.ID).Count(&items)
	if items != 0 {
		t.Errorf("items left: %d", items)
	}
	if ok, _ := env.store.Exists(ctx, docs[0].FilePath); ok {
		t.Error("document object left behind")
	}
	if err := env.quotations.Delete(ctx, q.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete = %v", err)
	}
}

func TestExchangeRates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.rates.Set(ctx, 1, "2024-05-01", 0); err == nil {
		t.Fatal("zero rate accepted")
	}
	if _, err := env.rates.Set(ctx, 1, "05/01/2024", 1500); err == nil {
		t.Fatal("bad date accepted")
	}
	env.rates.Set(ctx, 1, "2024-05-01", 1500)
	r, err := env.rates.Set(ctx, 1, "2024-05-01", 1510)
	if err != nil {
		t.Fatal(err)
	}
	if r.Rate != 1510 {
		t.Fatalf("rate = %v, want upsert to 1510", r.Rate)
	}
	var count int64
	env.db.Model(&models.ExchangeRate{}).Count(&count)
	if count != 1 {
		t.Fatalf("rows = %d, want 1", count)
	}

	// Rates are per user.
	if _, err := env.rates.ForDate(ctx, 2, "2024-05-01"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other user's rate visible: %v", err)
	}
	if _, err := env.rates.Latest(ctx, 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("latest for user without rates = %v", err)
	}
}

func TestStatsSummary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := createUser(t, env.db, "a@example.com", models.RoleUser)
	viewer := Viewer{ID: u.ID}

	empty, err := env.stats.Summary(ctx, viewer, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if empty.TotalQuotations != 0 || empty.ConversionRate != 0 {
		t.Fatalf("empty summary = %+v", empty)
	}

	statuses := []models.QuotationStatus{models.StatusApproved, models.StatusInvoiced, models.StatusRejected, models.StatusPending}
	for i, st := range statuses {
		form := newForm(fmt.Sprintf("P%d", i), forms.Item{Name: "x", Quantity: 1, UnitPrice: 10})
		form.VendorCost = 4
		q, err := env.quotations.Submit(ctx, u.ID, form)
		if err != nil {
			t.Fatal(err)
		}
		env.quotations.UpdateStatus(ctx, q.ID, st)
	}
	env.rates.Set(ctx, u.ID, "2024-05-01", 1000)

	sum, err := env.stats.Summary(ctx, viewer, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if sum.TotalQuotations != 4 || sum.ApprovedCount != 2 || sum.ConversionRate != 50 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.TotalProfitIQD != 4*6000 {
		t.Fatalf("profit = %v, want 24000", sum.TotalProfitIQD)
	}
	if len(sum.Warnings) != 0 {
		t.Fatalf("unexpected warnings %v", sum.Warnings)
	}
}

func TestStatsSummary_MissingRateWarns(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := createUser(t, env.db, "a@example.com", models.RoleUser)
	form := newForm("P", forms.Item{Name: "x", Quantity: 1, UnitPrice: 10})
	form.VendorCost = 4
	env.quotations.Submit(ctx, u.ID, form)

	sum, err := env.stats.Summary(ctx, Viewer{ID: u.ID}, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if sum.TotalProfitIQD != 6 || len(sum.Warnings) != 1 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestStatsItems(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := createUser(t, env.db, "a@example.com", models.RoleUser)
	env.rates.Set(ctx, u.ID, "2024-05-01", 1000)

	env.quotations.Submit(ctx, u.ID, newForm("P1",
		forms.Item{Name: "Cable", Quantity: 2, UnitPrice: 5, TypeName: "Hardware"},
		forms.Item{Name: "Install", Quantity: 1, UnitPrice: 100},
	))
	env.quotations.Submit(ctx, u.ID, newForm("P2",
		forms.Item{Name: "Cable", Quantity: 3, UnitPrice: 5, TypeName: "hardware"},
	))

	res, err := env.stats.Items(ctx, Viewer{ID: u.ID}, ItemFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("groups = %+v", res.Items)
	}
	if res.Items[0].Name != "Install" || res.Items[0].TotalValueIQD != 100000 {
		t.Errorf("first = %+v", res.Items[0])
	}
	cable := res.Items[1]
	if cable.Quantity != 5 || cable.QuotationCount != 2 || cable.TypeName != "Hardware" {
		t.Errorf("cable = %+v", cable)
	}

	res, _ = env.stats.Items(ctx, Viewer{ID: u.ID}, ItemFilter{Search: "cab"})
	if len(res.Items) != 1 {
		t.Errorf("search = %+v", res.Items)
	}
	res, _ = env.stats.Items(ctx, Viewer{ID: u.ID}, ItemFilter{From: "2024-06-01"})
	if len(res.Items) != 0 {
		t.Errorf("date filter = %+v", res.Items)
	}
}

// brokenStore fails deletes.
type brokenStore struct {
	storage.Store
}

func (brokenStore) Delete(context.Context, string) error { return errors.New("bucket unavailable") }

func TestDocuments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := createUser(t, env.db, "a@example.com", models.RoleUser)
	q, _ := env.quotations.Submit(ctx, u.ID, newForm("Tower"))

	docs, err := env.documents.Upload(ctx, q.ID, u.ID, []FileUpload{
		{Name: "Vendor-INVOICE-May.pdf", Size: 3, ContentType: "application/pdf", Body: strings.NewReader("abc")},
		{Name: "offer.PNG", Size: 2, ContentType: "image/png", Body: strings.NewReader("xy")},
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if docs[0].FileType != models.DocumentInvoice || docs[1].FileType != models.DocumentQuotation {
		t.Fatalf("types = %s, %s", docs[0].FileType, docs[1].FileType)
	}
	prefix := fmt.Sprintf("vendor-documents/%d/", q.ID)
	if !strings.HasPrefix(docs[0].FilePath, prefix) || !strings.HasSuffix(docs[1].FilePath, ".png") {
		t.Fatalf("paths = %s, %s", docs[0].FilePath, docs[1].FilePath)
	}
	if docs[0].URL == "" {
		t.Error("url not set")
	}

	list, _ := env.documents.List(ctx, q.ID)
	if len(list) != 2 {
		t.Fatalf("list = %d", len(list))
	}
	doc, _ := env.documents.Get(ctx, docs[0].ID)
	rc, err := env.documents.Open(ctx, doc)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(rc)
	rc.Close()
	if string(b) != "abc" {
		t.Fatalf("content = %q", b)
	}

	if err := env.documents.Delete(ctx, docs[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.documents.Get(ctx, docs[0].ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete = %v", err)
	}
	list, _ = env.documents.List(ctx, q.ID)
	if len(list) != 1 {
		t.Fatalf("list after delete = %d", len(list))
	}

	if _, err := env.documents.Upload(ctx, 999, u.ID, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("upload to missing quotation = %v", err)
	}
}

func TestDocuments_DeleteKeepsRowWhenStorageFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := createUser(t, env.db, "a@example.com", models.RoleUser)
	q, _ := env.quotations.Submit(ctx, u.ID, newForm("Tower"))
	docs, _ := env.documents.Upload(ctx, q.ID, u.ID, []FileUpload{{Name: "a.pdf", Body: strings.NewReader("a")}})

	broken := NewDocumentService(env.db, env.cache, brokenStore{Store: env.store})
	if err := broken.Delete(ctx, docs[0].ID); !errors.Is(err, ErrStorage) {
		t.Fatalf("err = %v, want ErrStorage", err)
	}
	if _, err := env.documents.Get(ctx, docs[0].ID); err != nil {
		t.Fatalf("row should be kept: %v", err)
	}
}

func TestDocuments_Reconcile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := createUser(t, env.db, "a@example.com", models.RoleUser)
	q, _ := env.quotations.Submit(ctx, u.ID, newForm("Tower"))
	docs, _ := env.documents.Upload(ctx, q.ID, u.ID, []FileUpload{
		{Name: "a.pdf", Body: strings.NewReader("a")},
		{Name: "b.pdf", Body: strings.NewReader("b")},
	})
	env.store.Delete(ctx, docs[1].FilePath)

	n, err := env.documents.Reconcile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("removed = %d, want 1", n)
	}
	list, _ := env.documents.List(ctx, q.ID)
	if len(list) != 1 || list[0].ID != docs[0].ID {
		t.Fatalf("remaining = %+v", list)
	}
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cs, err := env.settings.Get(ctx, 7)
	if err != nil || cs.UserID != 7 || cs.Address != "" {
		t.Fatalf("empty settings = %+v, %v", cs, err)
	}
	if logo, _ := env.settings.Logo(ctx, cs); logo != nil {
		t.Fatal("logo without upload")
	}

	cs, err = env.settings.UpdateAddress(ctx, 7, "Erbil, Iraq")
	if err != nil || cs.Address != "Erbil, Iraq" {
		t.Fatalf("address = %+v, %v", cs, err)
	}
	first, err := env.settings.SetLogo(ctx, 7, FileUpload{Name: "logo.png", Body: strings.NewReader("one")})
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.settings.SetLogo(ctx, 7, FileUpload{Name: "logo.png", Body: strings.NewReader("two")})
	if err != nil {
		t.Fatal(err)
	}
	if second.Address != "Erbil, Iraq" {
		t.Errorf("address lost on logo update: %+v", second)
	}
	if ok, _ := env.store.Exists(ctx, first.LogoPath); ok {
		t.Error("old logo not removed")
	}
	logo, err := env.settings.Logo(ctx, second)
	if err != nil || string(logo) != "two" {
		t.Fatalf("logo = %q, %v", logo, err)
	}
}

func TestUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.users.Register(ctx, Signup{Email: "bad", Password: "short"}); err == nil {
		t.Fatal("invalid signup accepted")
	}
	u, err := env.users.Register(ctx, Signup{Email: " New@Example.com ", Password: "password123", FirstName: "Sara"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Email != "new@example.com" || u.Approved || u.Role != models.RoleUser {
		t.Fatalf("user = %+v", u)
	}
	if _, err := env.users.Register(ctx, Signup{Email: "new@example.com", Password: "password123"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("duplicate = %v", err)
	}

	if _, err := env.users.Authenticate(ctx, "NEW@example.com", "password123"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if _, err := env.users.Authenticate(ctx, "new@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password = %v", err)
	}

	bogus := "owner"
	if _, err := env.users.Update(ctx, u.ID, UserUpdate{Role: &bogus}); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("invalid role = %v", err)
	}
	approved := true
	admin := models.RoleAdmin
	u, err = env.users.Update(ctx, u.ID, UserUpdate{Approved: &approved, Role: &admin})
	if err != nil || !u.Approved || u.Role != models.RoleAdmin {
		t.Fatalf("update = %+v, %v", u, err)
	}

	if err := env.users.ChangePassword(ctx, u.ID, "wrong", "newpassword"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("change with wrong current = %v", err)
	}
	if err := env.users.ChangePassword(ctx, u.ID, "password123", "newpassword"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.users.Authenticate(ctx, u.Email, "newpassword"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}

	other := createUser(t, env.db, "other@example.com", models.RoleUser)
	if _, err := env.users.UpdateProfile(ctx, u.ID, ProfileUpdate{Email: other.Email}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("email collision = %v", err)
	}
	u, err = env.users.UpdateProfile(ctx, u.ID, ProfileUpdate{Email: "sara@example.com", FirstName: "Sara", LastName: "K"})
	if err != nil || u.FullName() != "Sara K" {
		t.Fatalf("profile = %+v, %v", u, err)
	}

	u, err = env.users.SetAvatar(ctx, u.ID, FileUpload{Name: "me.jpg", Body: strings.NewReader("jpg")})
	if err != nil || !strings.HasPrefix(u.AvatarPath, fmt.Sprintf("avatars/%d/", u.ID)) || u.AvatarURL == "" {
		t.Fatalf("avatar = %+v, %v", u, err)
	}

	users, _ := env.users.List(ctx)
	if len(users) != 2 {
		t.Fatalf("users = %d", len(users))
	}
	if !env.users.Exists(ctx, u.ID) || env.users.Exists(ctx, 999) {
		t.Fatal("Exists mismatch")
	}
}

func TestRoles_SetPermissions(t *testing.T) {
	env := newTestEnv(t)
	if err := db.Seed(env.db, "", ""); err != nil {
		t.Fatal(err)
	}
	roles := NewRoleService(env.db)
	ctx := context.Background()

	list, err := roles.List(ctx)
	if err != nil || len(list) != 2 {
		t.Fatalf("roles = %v, %v", list, err)
	}
	var user models.Role
	for _, r := range list {
		if r.Name == models.RoleUser {
			user = r
		}
	}
	perms, err := roles.Permissions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var statsView uint
	for _, p := range perms {
		if p.Code() == "stats:view" {
			statsView = p.ID
		}
	}

	updated, err := roles.SetPermissions(ctx, user.ID, []uint{statsView, 999999})
	if err != nil {
		t.Fatal(err)
	}
	if len(updated.Permissions) != 1 || updated.Permissions[0].Code() != "stats:view" {
		t.Fatalf("permissions = %v", updated.Permissions)
	}
	if _, err := roles.SetPermissions(ctx, 424242, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing role err = %v", err)
	}
}
