package audit

import (
	"context"

	"snaptrail/document"
	"snaptrail/errors"
	"snaptrail/logging"
	"snaptrail/metrics"
)

// IUpdater 执行一次普通更新，恢复经由它走完整的审计管道
type IUpdater interface {
	Update(ctx context.Context, typeUID, documentID string, data map[string]any, locale string) (document.Document, error)
}

// Restorer 把文档写回某条记录的变更后快照
type Restorer struct {
	updater IUpdater
	logger  logging.Logger
}

// NewRestorer 创建 Restorer
func NewRestorer(updater IUpdater) *Restorer {
	return &Restorer{
		updater: updater,
		logger:  logging.GetLogger().WithFields(logging.Component("audit.restorer")),
	}
}

// Restore 以 chosen 的变更后快照更新文档。
// chosen 为空或没有变更后快照时返回 NOT_FOUND，更新失败时返回包装了原因的 RESTORE_REJECTED。
// 快照中被剔除的字段不会写回。
func (r *Restorer) Restore(ctx context.Context, typeUID, documentID string, chosen *Record) (document.Document, error) {
	if chosen == nil {
		metrics.RestoresTotal.WithLabelValues("not_found").Inc()
		return nil, errors.NewError(errors.ErrCodeNotFound, "no snapshot selected")
	}
	if chosen.SnapshotAfter == nil {
		metrics.RestoresTotal.WithLabelValues("not_found").Inc()
		return nil, errors.NewError(errors.ErrCodeNotFound, "selected record has no post-change snapshot").
			WithContext("audit_id", chosen.ID)
	}

	data, err := Snapshot(chosen.SnapshotAfter)
	if err != nil {
		metrics.RestoresTotal.WithLabelValues("rejected").Inc()
		return nil, errors.WrapError(err, errors.ErrCodeRestoreRejected, "copy snapshot")
	}

	doc, err := r.updater.Update(ctx, typeUID, documentID, data, chosen.Locale)
	if err != nil {
		metrics.RestoresTotal.WithLabelValues("rejected").Inc()
		r.logger.Warn(ctx, "restore rejected by document engine",
			logging.String("type", typeUID),
			logging.String("document_id", documentID),
			logging.Int64("audit_id", chosen.ID),
			logging.Error(err))
		return nil, errors.WrapError(err, errors.ErrCodeRestoreRejected, "document engine rejected snapshot")
	}

	metrics.RestoresTotal.WithLabelValues("success").Inc()
	r.logger.Info(ctx, "document restored from snapshot",
		logging.String("type", typeUID),
		logging.String("document_id", documentID),
		logging.Int64("audit_id", chosen.ID))
	return doc, nil
}
