package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/avalia-hub/avalia-hub/internal/application/command"
	"github.com/avalia-hub/avalia-hub/internal/application/query"
)

type studentAPI struct {
	commands *command.StudentHandler
	queries  *query.StudentQueries
}

func registerStudentAPI(g *echo.Group, deps Dependencies) {
	api := &studentAPI{commands: deps.Students, queries: deps.StudentQueries}

	g.GET("/list", api.list)
	g.GET("/get", api.retrieve)
	g.POST("/create", api.create)
	g.PUT("/update", api.update)
	g.DELETE("/delete", api.destroy)
}

type listStudentsRequest struct {
	Search     string `query:"search" validate:"max=200"`
	ClassID    string `query:"classId"`
	Unassigned bool   `query:"unassigned"`
	Limit      int    `query:"limit" validate:"gte=0,lte=500"`
	Offset     int    `query:"offset" validate:"gte=0"`
}

type createStudentRequest struct {
	ID      string  `json:"id"`
	Name    string  `json:"name" validate:"required,max=120"`
	Email   string  `json:"email" validate:"required,email"`
	ClassID *string `json:"classId"`
}

type updateStudentRequest struct {
	Name  *string `json:"name" validate:"omitempty,min=1,max=120"`
	Email *string `json:"email" validate:"omitempty,email"`
}

type deleteStudentResponse struct {
	Student    query.StudentDTO `json:"student"`
	Recomputed []string         `json:"recomputed"`
}

func (api *studentAPI) list(c echo.Context) error {
	req := new(listStudentsRequest)
	if err := bindQuery(c, req); err != nil {
		return err
	}
	list, err := api.queries.List(c.Request().Context(), query.ListStudentsQuery{
		Query:      req.Search,
		ClassID:    req.ClassID,
		Unassigned: req.Unassigned,
		Page:       pageRequest{Limit: req.Limit, Offset: req.Offset}.page(),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (api *studentAPI) retrieve(c echo.Context) error {
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	dto, err := api.queries.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dto)
}

func (api *studentAPI) create(c echo.Context) error {
	req := new(createStudentRequest)
	if err := bindBody(c, req); err != nil {
		return err
	}
	s, err := api.commands.Create(c.Request().Context(), command.CreateStudentCommand{
		ID:      req.ID,
		Name:    req.Name,
		Email:   req.Email,
		ClassID: req.ClassID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, query.NewStudentDTO(s))
}

func (api *studentAPI) update(c echo.Context) error {
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	req := new(updateStudentRequest)
	if err := bindBody(c, req); err != nil {
		return err
	}
	s, err := api.commands.Update(c.Request().Context(), command.UpdateStudentCommand{
		ID:    id,
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, query.NewStudentDTO(s))
}

func (api *studentAPI) destroy(c echo.Context) error {
	id, err := requireParam(c, "id")
	if err != nil {
		return err
	}
	result, err := api.commands.Delete(c.Request().Context(), id)
	if err != nil {
		return err
	}
	recomputed := result.Recomputed
	if recomputed == nil {
		recomputed = []string{}
	}
	return c.JSON(http.StatusOK, deleteStudentResponse{
		Student:    query.NewStudentDTO(result.Student),
		Recomputed: recomputed,
	})
}
