package http

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avalia-hub/avalia-hub/internal/application/command"
	"github.com/avalia-hub/avalia-hub/internal/application/query"
	"github.com/avalia-hub/avalia-hub/internal/domain/assignment"
	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
	"github.com/avalia-hub/avalia-hub/internal/infrastructure/export"
)

type assignmentAPI struct {
	commands *command.AssignmentHandler
	get      *query.GetAssignmentHandler
	list     *query.ListAssignmentsByClassHandler
	report   *query.GradeReportHandler
}

func registerAssignmentAPI(g *echo.Group, deps Dependencies) {
	api := &assignmentAPI{
		commands: deps.Assignments,
		get:      deps.GetAssignment,
		list:     deps.ListAssignments,
		report:   deps.GradeReport,
	}

	g.GET("/get", api.retrieve)
	g.GET("/list-by-class", api.listByClass)
	g.GET("/report", api.gradeReport)
	g.GET("/export", api.exportReport)
	g.POST("/create", api.create)
	g.PUT("/update", api.update)
	g.DELETE("/delete", api.destroy)
}

type listAssignmentsRequest struct {
	ClassID   string `query:"classId" validate:"required"`
	StudentID string `query:"studentId"`
}

type createAssignmentRequest struct {
	ID        string            `json:"id"`
	Name      string            `json:"name" validate:"required,max=200"`
	ClassID   string            `json:"classId" validate:"required"`
	Rubric    assignment.Rubric `json:"rubric"`
	StartDate *time.Time        `json:"startDate"`
	EndDate   *time.Time        `json:"endDate"`
}

// updateAssignmentRequest replaces startDate and endDate together when
// either is sent. MediaGeral is bound only so it can be rejected.
type updateAssignmentRequest struct {
	Name       *string            `json:"name" validate:"omitempty,min=1,max=200"`
	Rubric     *assignment.Rubric `json:"rubric"`
	StartDate  *time.Time         `json:"startDate"`
	EndDate    *time.Time         `json:"endDate"`
	MediaGeral *float64           `json:"mediaGeral"`
}

func (api *assignmentAPI) retrieve(c echo.Context) error {
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	dto, err := api.get.Handle(c.Request().Context(), query.GetAssignmentQuery{ID: id})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dto)
}

func (api *assignmentAPI) listByClass(c echo.Context) error {
	req := new(listAssignmentsRequest)
	if err := bindQuery(c, req); err != nil {
		return err
	}
	list, err := api.list.Handle(c.Request().Context(), query.ListAssignmentsByClassQuery{
		ClassID:   req.ClassID,
		StudentID: req.StudentID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (api *assignmentAPI) gradeReport(c echo.Context) error {
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	report, err := api.report.Handle(c.Request().Context(), query.GradeReportQuery{AssignmentID: id})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

func (api *assignmentAPI) exportReport(c echo.Context) error {
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	report, err := api.report.Handle(c.Request().Context(), query.GradeReportQuery{AssignmentID: id})
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := export.WriteGradeReport(&buf, report); err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", export.ReportFilename(report)))
	return c.Blob(http.StatusOK, export.ContentTypeXLSX, buf.Bytes())
}

func (api *assignmentAPI) create(c echo.Context) error {
	req := new(createAssignmentRequest)
	if err := bindBody(c, req); err != nil {
		return err
	}
	a, err := api.commands.Create(c.Request().Context(), command.CreateAssignmentCommand{
		ID:      req.ID,
		Name:    req.Name,
		ClassID: req.ClassID,
		Rubric:  req.Rubric,
		Dates:   shared.DateRange{Start: req.StartDate, End: req.EndDate},
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, query.NewAssignmentDTO(a))
}

func (api *assignmentAPI) update(c echo.Context) error {
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	req := new(updateAssignmentRequest)
	if err := bindBody(c, req); err != nil {
		return err
	}

	cmd := command.UpdateAssignmentCommand{
		ID:        id,
		Name:      req.Name,
		Rubric:    req.Rubric,
		Aggregate: req.MediaGeral,
	}
	if req.StartDate != nil || req.EndDate != nil {
		cmd.Dates = &shared.DateRange{Start: req.StartDate, End: req.EndDate}
	}

	a, err := api.commands.Update(c.Request().Context(), cmd)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, query.NewAssignmentDTO(a))
}

func (api *assignmentAPI) destroy(c echo.Context) error {
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	a, err := api.commands.Delete(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, query.NewAssignmentDTO(a))
}
