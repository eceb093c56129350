package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/avalia-hub/avalia-hub/internal/application/command"
	"github.com/avalia-hub/avalia-hub/internal/application/query"
	"github.com/avalia-hub/avalia-hub/internal/application/saga"
	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
)

type classAPI struct {
	commands *command.ClassHandler
	queries  *query.ClassQueries
}

func registerClassAPI(g *echo.Group, deps Dependencies) {
	api := &classAPI{commands: deps.Classes, queries: deps.ClassQueries}

	g.GET("/list", api.list)
	g.GET("/get", api.retrieve)
	g.POST("/create", api.create)
	g.PUT("/update", api.update)
	g.DELETE("/delete", api.destroy)
	g.POST("/add-student", api.addStudent)
	g.DELETE("/remove-student", api.removeStudent)
	g.POST("/resume-cascade", api.resumeCascade)
}

type pageRequest struct {
	Limit  int `query:"limit" validate:"gte=0,lte=500"`
	Offset int `query:"offset" validate:"gte=0"`
}

func (r pageRequest) page() shared.Page {
	return shared.Page{Limit: r.Limit, Offset: r.Offset}
}

type createClassRequest struct {
	ID           string `json:"id"`
	Name         string `json:"name" validate:"required,max=120"`
	InstructorID string `json:"instructorId" validate:"required"`
}

// updateClassRequest: a present roster (even empty) replaces the class
// roster; an absent one leaves it untouched.
type updateClassRequest struct {
	Name         *string  `json:"name" validate:"omitempty,min=1,max=120"`
	InstructorID *string  `json:"instructorId" validate:"omitempty,min=1"`
	Roster       []string `json:"roster" validate:"omitempty,dive,required"`
}

type rosterRequest struct {
	ClassID   string `json:"classId" query:"classId" validate:"required"`
	StudentID string `json:"studentId" query:"studentId" validate:"required"`
}

type updateClassResponse struct {
	Class   query.ClassDTO      `json:"class"`
	Cascade *saga.CascadeResult `json:"cascade,omitempty"`
}

func (api *classAPI) list(c echo.Context) error {
	req := new(pageRequest)
	if err := bindQuery(c, req); err != nil {
		return err
	}
	list, err := api.queries.List(c.Request().Context(), query.ListClassesQuery{Page: req.page()})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (api *classAPI) retrieve(c echo.Context) error {
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	dto, err := api.queries.Get(c.Request().Context(), query.GetClassQuery{ID: id})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dto)
}

func (api *classAPI) create(c echo.Context) error {
	req := new(createClassRequest)
	if err := bindBody(c, req); err != nil {
		return err
	}
	cl, err := api.commands.Create(c.Request().Context(), command.CreateClassCommand{
		ID:           req.ID,
		Name:         req.Name,
		InstructorID: req.InstructorID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, query.NewClassDTO(cl))
}

func (api *classAPI) update(c echo.Context) error {
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	req := new(updateClassRequest)
	if err := bindBody(c, req); err != nil {
		return err
	}

	cmd := command.UpdateClassCommand{ID: id, Name: req.Name, InstructorID: req.InstructorID}
	if req.Roster != nil {
		roster := req.Roster
		cmd.Roster = &roster
	}

	result, err := api.commands.Update(c.Request().Context(), cmd)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updateClassResponse{
		Class:   query.NewClassDTO(result.Class),
		Cascade: result.Cascade,
	})
}

func (api *classAPI) destroy(c echo.Context) error {
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	cl, err := api.commands.Delete(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, query.NewClassDTO(cl))
}

func (api *classAPI) addStudent(c echo.Context) error {
	req := new(rosterRequest)
	if err := bindBody(c, req); err != nil {
		return err
	}
	s, err := api.commands.AddStudent(c.Request().Context(), command.RosterCommand{
		ClassID:   req.ClassID,
		StudentID: req.StudentID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, query.NewStudentDTO(s))
}

func (api *classAPI) removeStudent(c echo.Context) error {
	req := new(rosterRequest)
	if err := bindQuery(c, req); err != nil {
		return err
	}
	result, err := api.commands.RemoveStudent(c.Request().Context(), command.RosterCommand{
		ClassID:   req.ClassID,
		StudentID: req.StudentID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (api *classAPI) resumeCascade(c echo.Context) error {
	runID, err := requireParam(c, "runId")
	if err != nil {
		return err
	}
	result, err := api.commands.ResumeCascade(c.Request().Context(), runID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
