package http

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/avalia-hub/avalia-hub/internal/application/command"
	"github.com/avalia-hub/avalia-hub/internal/application/query"
)

type evaluationAPI struct {
	commands *command.EvaluationHandler
	list     *query.ListEvaluationsHandler
}

func registerEvaluationAPI(g *echo.Group, deps Dependencies) {
	api := &evaluationAPI{commands: deps.Evaluations, list: deps.ListEvaluations}

	g.GET("/list", api.listByAssignment)
	g.POST("/create", api.create)
	g.PUT("/update", api.update)
	g.DELETE("/delete", api.destroy)
}

type createEvaluationRequest struct {
	ID                    string             `json:"id"`
	AssignmentID          string             `json:"assignmentId" validate:"required"`
	EvaluatorStudentID    *string            `json:"evaluatorStudentId"`
	EvaluatorInstructorID *string            `json:"evaluatorInstructorId"`
	EvaluatedStudentID    string             `json:"evaluatedStudentId" validate:"required"`
	Payload               json.RawMessage    `json:"payload" validate:"required"`
	FileGrades            map[string]float64 `json:"fileGrades"`
}

type updateEvaluationRequest struct {
	Payload    json.RawMessage    `json:"payload" validate:"required"`
	FileGrades map[string]float64 `json:"fileGrades"`
}

// evaluationResponse carries the assignment's new aggregate so the caller
// does not have to re-read it.
type evaluationResponse struct {
	Evaluation   *query.EvaluationDTO `json:"evaluation"`
	AssignmentID string               `json:"assignmentId"`
	MediaGeral   float64              `json:"mediaGeral"`
}

func newEvaluationResponse(r *command.EvaluationResult) evaluationResponse {
	resp := evaluationResponse{AssignmentID: r.AssignmentID, MediaGeral: r.Aggregate}
	if r.Evaluation != nil {
		dto := query.NewEvaluationDTO(r.Evaluation)
		resp.Evaluation = &dto
	}
	return resp
}

func (api *evaluationAPI) listByAssignment(c echo.Context) error {
	assignmentID, err := requireParam(c, "assignmentId")
	if err != nil {
		return err
	}
	list, err := api.list.Handle(c.Request().Context(), assignmentID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (api *evaluationAPI) create(c echo.Context) error {
	req := new(createEvaluationRequest)
	if err := bindBody(c, req); err != nil {
		return err
	}
	payload, err := payloadText(req.Payload)
	if err != nil {
		return err
	}

	result, err := api.commands.Create(c.Request().Context(), command.CreateEvaluationCommand{
		ID:                    req.ID,
		AssignmentID:          req.AssignmentID,
		EvaluatorStudentID:    req.EvaluatorStudentID,
		EvaluatorInstructorID: req.EvaluatorInstructorID,
		EvaluatedStudentID:    req.EvaluatedStudentID,
		Payload:               payload,
		FileGrades:            req.FileGrades,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, newEvaluationResponse(result))
}

func (api *evaluationAPI) update(c echo.Context) error {
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	req := new(updateEvaluationRequest)
	if err := bindBody(c, req); err != nil {
		return err
	}
	payload, err := payloadText(req.Payload)
	if err != nil {
		return err
	}

	result, err := api.commands.Update(c.Request().Context(), command.UpdateEvaluationCommand{
		ID:         id,
		Payload:    payload,
		FileGrades: req.FileGrades,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newEvaluationResponse(result))
}

func (api *evaluationAPI) destroy(c echo.Context) error {
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	result, err := api.commands.Delete(c.Request().Context(), command.DeleteEvaluationCommand{ID: id})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newEvaluationResponse(result))
}
