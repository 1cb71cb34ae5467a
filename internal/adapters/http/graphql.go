package http

import (
	"math/big"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/detscore/internal/core/domain"
)

// ratField resolves an exact charge as its fraction string.
func ratField(get func(domain.Charge) *big.Rat) *graphql.Field {
	return &graphql.Field{
		Type: graphql.String,
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			o, ok := p.Source.(domain.TaggedObject)
			if !ok {
				return nil, nil
			}
			r := get(o.Charge)
			if r == nil {
				return nil, nil
			}
			return r.RatString(), nil
		},
	}
}

// buildSchema creates the GraphQL schema wired to the evaluation service.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	metricsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Metrics",
		Fields: graphql.Fields{
			"tp":        &graphql.Field{Type: graphql.Float, Resolve: metricsField(func(m domain.MetricsRecord) any { return m.TP })},
			"fp":        &graphql.Field{Type: graphql.Float, Resolve: metricsField(func(m domain.MetricsRecord) any { return m.FP })},
			"fn":        &graphql.Field{Type: graphql.Float, Resolve: metricsField(func(m domain.MetricsRecord) any { return m.FN })},
			"precision": &graphql.Field{Type: graphql.Float, Resolve: metricsField(func(m domain.MetricsRecord) any { return m.Precision })},
			"recall":    &graphql.Field{Type: graphql.Float, Resolve: metricsField(func(m domain.MetricsRecord) any { return m.Recall })},
			"f1":        &graphql.Field{Type: graphql.Float, Resolve: metricsField(func(m domain.MetricsRecord) any { return m.F1 })},
			"tpExact":   &graphql.Field{Type: graphql.String, Resolve: metricsField(func(m domain.MetricsRecord) any { return m.TPExact })},
			"fpExact":   &graphql.Field{Type: graphql.String, Resolve: metricsField(func(m domain.MetricsRecord) any { return m.FPExact })},
			"fnExact":   &graphql.Field{Type: graphql.String, Resolve: metricsField(func(m domain.MetricsRecord) any { return m.FNExact })},
		},
	})

	sectorType := graphql.NewObject(graphql.ObjectConfig{
		Name: "SectorMetrics",
		Fields: graphql.Fields{
			"sector":  &graphql.Field{Type: graphql.String},
			"num_gt":  &graphql.Field{Type: graphql.Int},
			"num_det": &graphql.Field{Type: graphql.Int},
			"metrics": &graphql.Field{Type: metricsType},
		},
	})

	objectType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TaggedObject",
		Fields: graphql.Fields{
			"id": &graphql.Field{Type: graphql.String, Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(domain.TaggedObject).ID, nil
			}},
			"x": &graphql.Field{Type: graphql.Float, Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(domain.TaggedObject).Geometry.X, nil
			}},
			"y": &graphql.Field{Type: graphql.Float, Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source.(domain.TaggedObject).Geometry.Y, nil
			}},
			"group_id": &graphql.Field{Type: graphql.Int, Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if g := p.Source.(domain.TaggedObject).GroupID; g != nil {
					return *g, nil
				}
				return nil, nil
			}},
			"tp_charge": ratField(func(c domain.Charge) *big.Rat { return c.TP }),
			"fp_charge": ratField(func(c domain.Charge) *big.Rat { return c.FP }),
			"fn_charge": ratField(func(c domain.Charge) *big.Rat { return c.FN }),
			"tag": &graphql.Field{Type: graphql.String, Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return string(p.Source.(domain.TaggedObject).Tag), nil
			}},
		},
	})

	evaluationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Evaluation",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String},
			"strategy":    &graphql.Field{Type: graphql.String},
			"tolerance_m": &graphql.Field{Type: graphql.Float},
			"digest":      &graphql.Field{Type: graphql.String},
			"num_groups":  &graphql.Field{Type: graphql.Int},
			"num_gt":      &graphql.Field{Type: graphql.Int},
			"num_det":     &graphql.Field{Type: graphql.Int},
			"balanced":    &graphql.Field{Type: graphql.Boolean},
			"created_at":  &graphql.Field{Type: graphql.DateTime},
			"metrics":     &graphql.Field{Type: metricsType},
			"sectors":     &graphql.Field{Type: graphql.NewList(sectorType)},
			"objects": &graphql.Field{
				Type:        graphql.NewList(objectType),
				Description: "Tagged objects of one side",
				Args: graphql.FieldConfigArgument{
					"source": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: "gt"},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					e := p.Source.(*domain.Evaluation)
					source := domain.Source(p.Args["source"].(string))
					if e.Result != nil {
						if source == domain.SourceDET {
							return e.Result.DET, nil
						}
						if source == domain.SourceGT {
							return e.Result.GT, nil
						}
					}
					return deps.Evaluations.Objects(p.Context, e.ID, source)
				},
			},
		},
	})

	pointInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "PointInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"x": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
			"y": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"evaluation": &graphql.Field{
				Type:        evaluationType,
				Description: "Get an evaluation by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Evaluations.Get(p.Context, p.Args["id"].(string))
				},
			},
			"evaluations": &graphql.Field{
				Type:        graphql.NewList(evaluationType),
				Description: "List evaluations, newest first",
				Args: graphql.FieldConfigArgument{
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					evals, _, err := deps.Evaluations.List(p.Context, p.Args["offset"].(int), p.Args["limit"].(int))
					if err != nil {
						return nil, err
					}
					out := make([]*domain.Evaluation, len(evals))
					for i := range evals {
						out[i] = &evals[i]
					}
					return out, nil
				},
			},
			"score": &graphql.Field{
				Type:        metricsType,
				Description: "Precision, recall and F1 from counts",
				Args: graphql.FieldConfigArgument{
					"tp": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
					"fp": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
					"fn": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Evaluations.Score(p.Args["tp"].(int), p.Args["fp"].(int), p.Args["fn"].(int))
				},
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"evaluate": &graphql.Field{
				Type:        evaluationType,
				Description: "Score detections against ground truth",
				Args: graphql.FieldConfigArgument{
					"gt":          &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(pointInput)))},
					"det":         &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(pointInput)))},
					"tolerance_m": &graphql.ArgumentConfig{Type: graphql.Float},
					"strategy":    &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					req := &domain.EvaluationRequest{
						GT:  pointsArg(p.Args["gt"]),
						DET: pointsArg(p.Args["det"]),
					}
					if tol, ok := p.Args["tolerance_m"].(float64); ok {
						req.ToleranceM = &tol
					}
					if s, ok := p.Args["strategy"].(string); ok {
						req.Strategy = domain.Strategy(s)
					}
					return deps.Evaluations.Run(p.Context, req)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

func metricsField(get func(domain.MetricsRecord) any) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		switch m := p.Source.(type) {
		case domain.MetricsRecord:
			return get(m), nil
		case *domain.MetricsRecord:
			return get(*m), nil
		}
		return nil, nil
	}
}

func pointsArg(v any) []domain.SpatialObject {
	list, _ := v.([]interface{})
	out := make([]domain.SpatialObject, 0, len(list))
	for _, item := range list {
		m, _ := item.(map[string]interface{})
		x, _ := m["x"].(float64)
		y, _ := m["y"].(float64)
		out = append(out, domain.SpatialObject{Geometry: &domain.Point{X: x, Y: y}})
	}
	return out
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
