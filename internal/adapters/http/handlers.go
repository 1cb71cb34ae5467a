package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	geojsonadapter "github.com/samirrijal/detscore/internal/adapters/geojson"
	"github.com/samirrijal/detscore/internal/core/domain"
)

// evaluationBody is the POST /v1/evaluations payload. gt and det are either
// GeoJSON FeatureCollections of points or plain arrays of objects; sectors is
// a FeatureCollection of polygons.
type evaluationBody struct {
	GT                 json.RawMessage `json:"gt"`
	DET                json.RawMessage `json:"det"`
	Sectors            json.RawMessage `json:"sectors,omitempty"`
	SectorNameProperty string          `json:"sector_name_property,omitempty"`
	SectorBufferM      *float64        `json:"sector_buffer_m,omitempty"`
	ToleranceM         *float64        `json:"tolerance_m,omitempty"`
	Strategy           domain.Strategy `json:"strategy,omitempty"`
	GTPrefix           string          `json:"gt_prefix,omitempty"`
	DETPrefix          string          `json:"det_prefix,omitempty"`
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func decodeObjects(raw json.RawMessage, source domain.Source) ([]domain.SpatialObject, error) {
	if isNull(raw) {
		return nil, nil
	}
	raw = bytes.TrimSpace(raw)
	switch raw[0] {
	case '[':
		var objs []domain.SpatialObject
		if err := json.Unmarshal(raw, &objs); err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
		return objs, nil
	case '{':
		return geojsonadapter.ReadObjects(bytes.NewReader(raw), source)
	default:
		return nil, fmt.Errorf("%s: expected a FeatureCollection or an array", source)
	}
}

func (b *evaluationBody) request() (*domain.EvaluationRequest, error) {
	gt, err := decodeObjects(b.GT, domain.SourceGT)
	if err != nil {
		return nil, err
	}
	det, err := decodeObjects(b.DET, domain.SourceDET)
	if err != nil {
		return nil, err
	}
	req := &domain.EvaluationRequest{
		GT:         gt,
		DET:        det,
		ToleranceM: b.ToleranceM,
		Strategy:   b.Strategy,
		GTPrefix:   b.GTPrefix,
		DETPrefix:  b.DETPrefix,
		SectorBufM: b.SectorBufferM,
	}
	if !isNull(b.Sectors) {
		req.Sectors, err = geojsonadapter.ReadSectors(bytes.NewReader(b.Sectors), b.SectorNameProperty)
		if err != nil {
			return nil, fmt.Errorf("sectors: %w", err)
		}
	}
	return req, nil
}

// summary drops the tagged objects unless ?result=true.
func summary(c *fiber.Ctx, e *domain.Evaluation) *domain.Evaluation {
	if c.QueryBool("result", false) {
		return e
	}
	s := *e
	s.Result = nil
	return &s
}

// CreateEvaluationHandler scores a GT/DET pair and stores the result.
func CreateEvaluationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body evaluationBody
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		req, err := body.request()
		if err != nil {
			if domain.IsInputError(err) || errors.Is(err, domain.ErrMissingGeometry) {
				return errUnprocessable(c, err.Error())
			}
			return errBadRequest(c, err.Error())
		}

		eval, err := deps.Evaluations.Run(c.UserContext(), req)
		if err != nil {
			return fromError(c, err)
		}

		c.Location("/v1/evaluations/" + eval.ID)
		return c.Status(201).JSON(summary(c, eval))
	}
}

// ListEvaluationsHandler returns stored evaluations, newest first.
func ListEvaluationsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		offset, limit := pageParams(c)

		evals, total, err := deps.Evaluations.List(c.UserContext(), offset, limit)
		if err != nil {
			return fromError(c, err)
		}
		if evals == nil {
			evals = []domain.Evaluation{}
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: evals, Pagination: pg})
	}
}

// GetEvaluationHandler returns one evaluation.
func GetEvaluationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		eval, err := deps.Evaluations.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return fromError(c, err)
		}
		return c.JSON(summary(c, eval))
	}
}

// EvaluationObjectsHandler returns the tagged objects of one side, as JSON
// or, with ?format=geojson, as a FeatureCollection.
func EvaluationObjectsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		source := domain.Source(c.Query("source", string(domain.SourceGT)))
		if source != domain.SourceGT && source != domain.SourceDET {
			return errBadRequest(c, "source must be gt or det")
		}
		objs, err := deps.Evaluations.Objects(c.UserContext(), c.Params("id"), source)
		if err != nil {
			return fromError(c, err)
		}

		switch c.Query("format", "json") {
		case "geojson":
			c.Set(fiber.HeaderContentType, "application/geo+json")
			data, err := geojsonadapter.Marshal(objs)
			if err != nil {
				return errInternal(c, err.Error())
			}
			return c.Send(data)
		case "json":
			if objs == nil {
				objs = []domain.TaggedObject{}
			}
			return c.JSON(objs)
		default:
			return errBadRequest(c, "format must be json or geojson")
		}
	}
}

type scoreBody struct {
	TP *int `json:"tp"`
	FP *int `json:"fp"`
	FN *int `json:"fn"`
}

// ScoreHandler computes precision, recall and F1 from counts.
func ScoreHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body scoreBody
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if body.TP == nil || body.FP == nil || body.FN == nil {
			return errBadRequest(c, "tp, fp and fn are required")
		}
		m, err := deps.Evaluations.Score(*body.TP, *body.FP, *body.FN)
		if err != nil {
			return errUnprocessable(c, err.Error())
		}
		return c.JSON(m)
	}
}
