package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yeremiapane/chopchop-backend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderStore keeps order documents, their tracking history and the vendor
// directory. A store obtained inside Transaction is bound to that
// transaction.
type OrderStore struct {
	db          *gorm.DB
	transformer *OrderTransformer
	Now         func() time.Time
}

func NewOrderStore(db *gorm.DB, transformer *OrderTransformer) *OrderStore {
	if transformer == nil {
		transformer = NewOrderTransformer(nil)
	}
	return &OrderStore{
		db:          db,
		transformer: transformer,
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *OrderStore) Transformer() *OrderTransformer {
	return s.transformer
}

// Transaction runs fn against a store bound to a single database transaction.
func (s *OrderStore) Transaction(ctx context.Context, fn func(tx *OrderStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bound := *s
		bound.db = tx
		return fn(&bound)
	})
}

func (s *OrderStore) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// DocumentQuery selects documents. Empty fields are ignored.
type DocumentQuery struct {
	Collection    string
	VendorCopies  bool
	OrderRef      string
	CustomerRef   string
	CustomerEmail string
	VendorRef     string
	Since         time.Time
	Limit         int
}

func (s *OrderStore) Insert(ctx context.Context, collection string, body map[string]interface{}) (*models.Document, error) {
	doc, err := s.newDocument(collection, body)
	if err != nil {
		return nil, err
	}
	if err := s.conn(ctx).Create(doc).Error; err != nil {
		return nil, newError(CodeStore, "insert document", err)
	}
	if err := s.recordChange(ctx, doc, models.ActionInsert); err != nil {
		return nil, err
	}
	return doc, nil
}

// InsertProjection inserts a document unless one with the same projection
// key exists. created is false when the existing document is returned.
func (s *OrderStore) InsertProjection(ctx context.Context, collection, key string, body map[string]interface{}) (*models.Document, bool, error) {
	doc, err := s.newDocument(collection, body)
	if err != nil {
		return nil, false, err
	}
	doc.ProjectionKey = &key

	res := s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "projection_key"}},
		DoNothing: true,
	}).Create(doc)
	if res.Error != nil {
		return nil, false, newError(CodeStore, "insert projection", res.Error)
	}

	if res.RowsAffected == 0 {
		var existing models.Document
		if err := s.conn(ctx).Where("projection_key = ?", key).First(&existing).Error; err != nil {
			return nil, false, newError(CodeStore, "load existing projection", err)
		}
		return &existing, false, nil
	}

	if err := s.recordChange(ctx, doc, models.ActionInsert); err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (s *OrderStore) newDocument(collection string, body map[string]interface{}) (*models.Document, error) {
	now := s.Now()
	if body == nil {
		body = map[string]interface{}{}
	}
	if _, ok := body["createdAt"]; !ok {
		body["createdAt"] = now.Format(time.RFC3339Nano)
	}
	body["updatedAt"] = now.Format(time.RFC3339Nano)

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, newError(CodeInvalidDocument, "encode document", err)
	}

	doc := &models.Document{
		ID:         uuid.NewString(),
		Collection: collection,
		Body:       string(raw),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	indexDocument(doc, body)
	return doc, nil
}

func indexDocument(doc *models.Document, body map[string]interface{}) {
	r := fieldReader{docID: doc.ID, fields: body}
	doc.OrderRef = r.str("orderId")
	doc.CustomerRef = r.str("customerId")
	doc.VendorRef = r.str("eateryId", "vendorId")
	doc.CustomerEmail = normalizeEmail(r.customer().Email)
}

// normalizeEmail is applied to the stored index and to lookups alike.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Patch merges fields into a document body.
func (s *OrderStore) Patch(ctx context.Context, doc *models.Document, patch map[string]interface{}) error {
	body, err := decodeBody(doc.Body)
	if err != nil {
		return newError(CodeInvalidDocument, "decode document "+doc.ID, err)
	}
	now := s.Now()
	for k, v := range patch {
		body[k] = v
	}
	body["updatedAt"] = now.Format(time.RFC3339Nano)

	raw, err := json.Marshal(body)
	if err != nil {
		return newError(CodeInvalidDocument, "encode document "+doc.ID, err)
	}
	doc.Body = string(raw)
	doc.UpdatedAt = now
	indexDocument(doc, body)

	err = s.conn(ctx).Model(&models.Document{}).Where("id = ?", doc.ID).Updates(map[string]interface{}{
		"body":           doc.Body,
		"order_ref":      doc.OrderRef,
		"customer_ref":   doc.CustomerRef,
		"customer_email": doc.CustomerEmail,
		"vendor_ref":     doc.VendorRef,
		"updated_at":     now,
	}).Error
	if err != nil {
		return newError(CodeStore, "update document "+doc.ID, err)
	}
	return s.recordChange(ctx, doc, models.ActionUpdate)
}

func (s *OrderStore) Get(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	if err := s.conn(ctx).First(&doc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, newError(CodeStore, "get document", err)
	}
	return &doc, nil
}

// Find returns matching documents, oldest first.
func (s *OrderStore) Find(ctx context.Context, q DocumentQuery) ([]models.Document, error) {
	tx := s.conn(ctx).Model(&models.Document{})
	if q.Collection != "" {
		tx = tx.Where("collection = ?", q.Collection)
	}
	if q.VendorCopies {
		tx = tx.Where("collection LIKE ?", models.CollectionEateries+"/%/orders")
	}
	if q.OrderRef != "" {
		tx = tx.Where("order_ref = ?", q.OrderRef)
	}
	if q.CustomerRef != "" {
		tx = tx.Where("customer_ref = ?", q.CustomerRef)
	}
	if q.CustomerEmail != "" {
		tx = tx.Where("customer_email = ?", normalizeEmail(q.CustomerEmail))
	}
	if q.VendorRef != "" {
		tx = tx.Where("vendor_ref = ?", q.VendorRef)
	}
	if !q.Since.IsZero() {
		tx = tx.Where("created_at >= ?", q.Since)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var docs []models.Document
	if err := tx.Order("created_at ASC").Order("id ASC").Find(&docs).Error; err != nil {
		return nil, newError(CodeFetch, "find documents", err)
	}
	return docs, nil
}

func (s *OrderStore) FindByOrderRef(ctx context.Context, collection, orderRef string) ([]models.Document, error) {
	return s.Find(ctx, DocumentQuery{Collection: collection, OrderRef: orderRef})
}

// AppendTrackingUpdate adds one history entry. Entries are never rewritten,
// so concurrent appends for the same order cannot overwrite each other.
func (s *OrderStore) AppendTrackingUpdate(ctx context.Context, doc *models.Document, update models.TrackingUpdate, source string) error {
	if update.Timestamp.IsZero() {
		update.Timestamp = s.Now()
	}
	rec := models.TrackingUpdateRecord{
		DocumentID: doc.ID,
		Status:     update.Status,
		Message:    update.Message,
		Location:   update.Location,
		Source:     source,
		Timestamp:  update.Timestamp,
	}
	if err := s.conn(ctx).Create(&rec).Error; err != nil {
		return newError(CodeStore, "append tracking update", err)
	}
	return s.recordChange(ctx, doc, models.ActionUpdate)
}

// TrackingUpdates returns stored history per document id, oldest first.
func (s *OrderStore) TrackingUpdates(ctx context.Context, docIDs ...string) (map[string][]models.TrackingUpdate, error) {
	out := make(map[string][]models.TrackingUpdate, len(docIDs))
	if len(docIDs) == 0 {
		return out, nil
	}
	var recs []models.TrackingUpdateRecord
	if err := s.conn(ctx).Where("document_id IN ?", docIDs).Order("id ASC").Find(&recs).Error; err != nil {
		return nil, newError(CodeFetch, "load tracking updates", err)
	}
	for _, r := range recs {
		out[r.DocumentID] = append(out[r.DocumentID], r.ToUpdate())
	}
	return out, nil
}

// LoadOrders normalizes documents and attaches their tracking history.
// Inline history of older documents comes first.
func (s *OrderStore) LoadOrders(ctx context.Context, docs []models.Document) ([]models.Order, error) {
	docIDs := make([]string, 0, len(docs))
	for _, d := range docs {
		docIDs = append(docIDs, d.ID)
	}
	history, err := s.TrackingUpdates(ctx, docIDs...)
	if err != nil {
		return nil, err
	}

	orders := make([]models.Order, 0, len(docs))
	for _, d := range docs {
		o := s.transformer.TransformJSON(d.ID, d.Body, d.CreatedAt)
		o.Collection = d.Collection
		o.TrackingUpdates = append(o.TrackingUpdates, history[d.ID]...)
		orders = append(orders, o)
	}
	return orders, nil
}

func (s *OrderStore) LoadOrder(ctx context.Context, doc *models.Document) (models.Order, error) {
	orders, err := s.LoadOrders(ctx, []models.Document{*doc})
	if err != nil {
		return models.Order{}, err
	}
	return orders[0], nil
}

func (s *OrderStore) recordChange(ctx context.Context, doc *models.Document, action string) error {
	change := models.DBChange{
		Collection:  doc.Collection,
		DocumentID:  doc.ID,
		OrderRef:    doc.OrderRef,
		CustomerRef: doc.CustomerRef,
		ActionType:  action,
		ChangedAt:   s.Now(),
	}
	if err := s.conn(ctx).Create(&change).Error; err != nil {
		return newError(CodeStore, "record change", err)
	}
	return nil
}

// PendingChanges returns unprocessed change rows, oldest first.
func (s *OrderStore) PendingChanges(ctx context.Context, limit int) ([]models.DBChange, error) {
	var changes []models.DBChange
	err := s.conn(ctx).Where("processed = ?", false).
		Order("id ASC").
		Limit(limit).
		Find(&changes).Error
	if err != nil {
		return nil, newError(CodeFetch, "load changes", err)
	}
	return changes, nil
}

func (s *OrderStore) MarkChangesProcessed(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.conn(ctx).Model(&models.DBChange{}).Where("id IN ?", ids).Update("processed", true).Error; err != nil {
		return newError(CodeStore, "mark changes processed", err)
	}
	return nil
}

// Eateries

// CreateEatery registers a vendor together with its restaurant links.
func (s *OrderStore) CreateEatery(ctx context.Context, e *models.Eatery) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Email = strings.ToLower(strings.TrimSpace(e.Email))
	if err := s.conn(ctx).Create(e).Error; err != nil {
		return newError(CodeStore, "create eatery", err)
	}
	return nil
}

func (s *OrderStore) GetEatery(ctx context.Context, id string) (*models.Eatery, error) {
	var e models.Eatery
	if err := s.conn(ctx).Preload("Restaurants").First(&e, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVendorNotFound
		}
		return nil, newError(CodeStore, "get eatery", err)
	}
	return &e, nil
}

func (s *OrderStore) FindEateryByEmail(ctx context.Context, email string) (*models.Eatery, error) {
	var e models.Eatery
	err := s.conn(ctx).Preload("Restaurants").Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVendorNotFound
		}
		return nil, newError(CodeStore, "find eatery", err)
	}
	return &e, nil
}

// FindEateriesByRestaurant returns the eateries serving an upstream restaurant.
func (s *OrderStore) FindEateriesByRestaurant(ctx context.Context, restaurantID string) ([]models.Eatery, error) {
	var eateries []models.Eatery
	err := s.conn(ctx).
		Joins("JOIN eatery_restaurants ON eatery_restaurants.eatery_id = eateries.id").
		Where("eatery_restaurants.restaurant_id = ?", restaurantID).
		Order("eateries.id ASC").
		Find(&eateries).Error
	if err != nil {
		return nil, newError(CodeFetch, "find eateries by restaurant", err)
	}
	return eateries, nil
}

func (s *OrderStore) ListEateries(ctx context.Context) ([]models.Eatery, error) {
	var eateries []models.Eatery
	if err := s.conn(ctx).Preload("Restaurants").Order("id ASC").Find(&eateries).Error; err != nil {
		return nil, newError(CodeFetch, "list eateries", err)
	}
	return eateries, nil
}

// Projection jobs

// EnqueueProjection inserts a job unless its idempotency key is taken.
func (s *OrderStore) EnqueueProjection(ctx context.Context, job *models.ProjectionJob) error {
	if job.Status == "" {
		job.Status = models.JobPending
	}
	if job.NextAttemptAt.IsZero() {
		job.NextAttemptAt = s.Now()
	}
	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(job).Error
	if err != nil {
		return newError(CodeStore, "enqueue projection", err)
	}
	return nil
}

func (s *OrderStore) DueProjectionJobs(ctx context.Context, now time.Time, limit int) ([]models.ProjectionJob, error) {
	var jobs []models.ProjectionJob
	err := s.conn(ctx).
		Where("status = ? AND next_attempt_at <= ?", models.JobPending, now).
		Order("id ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, newError(CodeFetch, "load projection jobs", err)
	}
	return jobs, nil
}

func (s *OrderStore) SaveProjectionJob(ctx context.Context, job *models.ProjectionJob) error {
	if err := s.conn(ctx).Save(job).Error; err != nil {
		return newError(CodeStore, "save projection job", err)
	}
	return nil
}

func (s *OrderStore) ProjectionJobs(ctx context.Context, orderDocID string) ([]models.ProjectionJob, error) {
	var jobs []models.ProjectionJob
	if err := s.conn(ctx).Where("order_doc_id = ?", orderDocID).Order("id ASC").Find(&jobs).Error; err != nil {
		return nil, newError(CodeFetch, "load projection jobs", err)
	}
	return jobs, nil
}
