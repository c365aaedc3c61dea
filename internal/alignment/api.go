package alignment

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"gopkg.in/guregu/null.v3"

	"github.com/alignlab/alignd/internal/api"
	alignctx "github.com/alignlab/alignd/internal/context"
	"github.com/alignlab/alignd/pkg/model"
)

func (s *Service) postJob(c echo.Context) (interface{}, error) {
	user := c.(*alignctx.AlignContext).MustGetUser()

	audio, err := formUpload(c, "audio_file")
	if err != nil {
		return nil, err
	}
	defer audio.close()
	text, err := formUpload(c, "text_file")
	if err != nil {
		return nil, err
	}
	defer text.close()

	req := JobRequest{
		Audio: audio.Upload,
		Text:  text.Upload,
		Acoustic: model.ModelRef{
			Name:    c.FormValue("acoustic_model_name"),
			Version: c.FormValue("acoustic_model_version"),
		},
		Dictionary: model.ModelRef{
			Name:    c.FormValue("dictionary_model_name"),
			Version: c.FormValue("dictionary_model_version"),
		},
	}
	if name := c.FormValue("g2p_model_name"); name != "" {
		req.G2P = &model.ModelRef{Name: name, Version: c.FormValue("g2p_model_version")}
	}

	job, err := s.CreateJob(c.Request().Context(), user, req)
	if err != nil {
		return nil, err
	}

	// The queue handoff is deliberately outside the admission path: a
	// pending job that failed to enqueue can be re-published later.
	if err := s.enqueuer.PublishJob(job.ID); err != nil {
		log.WithError(err).WithField("job_id", job.ID).
			Error("failed to enqueue alignment job")
	}
	return nil, c.JSON(http.StatusCreated, job)
}

func (s *Service) getJobs(c echo.Context) (interface{}, error) {
	user := c.(*alignctx.AlignContext).MustGetUser()

	var status *model.JobStatus
	if raw := c.QueryParam("status"); raw != "" {
		st := model.JobStatus(raw)
		if err := st.Validate(); err != nil {
			return nil, api.AsValidationError("%s", err.Error())
		}
		status = &st
	}
	skip, _ := strconv.Atoi(c.QueryParam("skip"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	jobs, pagination, err := s.store.ListJobs(c.Request().Context(), user.ID, status, skip, limit)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"jobs": jobs, "pagination": pagination}, nil
}

func (s *Service) getJob(c echo.Context) (interface{}, error) {
	user := c.(*alignctx.AlignContext).MustGetUser()
	job, err := s.jobForUser(c, user)
	if err != nil {
		return nil, err
	}
	return job, nil
}

type patchJobRequest struct {
	Status       *model.JobStatus `json:"status"`
	ResultPath   *string          `json:"result_path"`
	ErrorMessage *string          `json:"error_message"`
}

func (s *Service) putJob(c echo.Context) (interface{}, error) {
	user := c.(*alignctx.AlignContext).MustGetUser()
	job, err := s.jobForUser(c, user)
	if err != nil {
		return nil, err
	}

	var req patchJobRequest
	if err := c.Bind(&req); err != nil {
		return nil, api.AsValidationError("malformed request body")
	}

	if req.Status != nil {
		if err := req.Status.Validate(); err != nil {
			return nil, api.AsValidationError("%s", err.Error())
		}
		if job.Status.Terminal() && *req.Status != job.Status {
			log.WithFields(log.Fields{
				"job_id": job.ID,
				"from":   job.Status,
				"to":     *req.Status,
			}).Warn("updating job out of a terminal state")
		}
		job.Status = *req.Status
	}
	if req.ResultPath != nil {
		job.ResultPath = null.StringFrom(*req.ResultPath)
	}
	if req.ErrorMessage != nil {
		job.ErrorMessage = null.StringFrom(*req.ErrorMessage)
	}

	if err := s.store.UpdateJob(c.Request().Context(), job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Service) deleteJob(c echo.Context) (interface{}, error) {
	user := c.(*alignctx.AlignContext).MustGetUser()
	job, err := s.jobForUser(c, user)
	if err != nil {
		return nil, err
	}
	return nil, s.store.DeleteJob(c.Request().Context(), job.ID)
}

// jobForUser loads the job named in the path and enforces ownership. Other
// users' jobs read as not found rather than forbidden.
func (s *Service) jobForUser(c echo.Context, user model.User) (*model.AlignmentJob, error) {
	id, err := strconv.Atoi(c.Param("job_id"))
	if err != nil {
		return nil, api.AsValidationError("invalid job ID: %s", c.Param("job_id"))
	}
	job, err := s.store.JobByID(c.Request().Context(), model.JobID(id))
	if err != nil {
		return nil, err
	}
	if err := jobVisibleTo(job, user); err != nil {
		return nil, err
	}
	return job, nil
}

type upload struct {
	Upload
	file interface{ Close() error }
}

func (u upload) close() {
	if u.file != nil {
		_ = u.file.Close()
	}
}

func formUpload(c echo.Context, field string) (upload, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return upload{}, api.AsValidationError("missing form file %q", field)
	}
	f, err := header.Open()
	if err != nil {
		return upload{}, err
	}
	return upload{
		Upload: Upload{
			Filename:    header.Filename,
			Size:        header.Size,
			ContentType: header.Header.Get("Content-Type"),
			Body:        f,
		},
		file: f,
	}, nil
}

// RegisterAPIHandler initializes and registers the API handlers for alignment jobs.
func RegisterAPIHandler(echo *echo.Echo, s *Service, middleware ...echo.MiddlewareFunc) {
	group := echo.Group("/alignment", middleware...)
	group.POST("", api.Route(s.postJob))
	group.GET("", api.Route(s.getJobs))
	group.GET("/:job_id", api.Route(s.getJob))
	group.PUT("/:job_id", api.Route(s.putJob))
	group.DELETE("/:job_id", api.Route(s.deleteJob))
}
