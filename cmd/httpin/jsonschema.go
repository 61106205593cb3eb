package main

import (
	"net/http"
	"reflect"

	"github.com/bcc-code/bcc-media-joiner/workflows"
	"github.com/gin-gonic/gin"
	"github.com/invopop/jsonschema"
)

type WorkflowSchema struct {
	Name   string             `json:"name"`
	Schema *jsonschema.Schema `json:"schema"`
}

func workflowSchemas() []WorkflowSchema {
	var schemas []WorkflowSchema

	for _, wf := range workflows.TriggerableWorkflows {
		typ := reflect.TypeOf(wf)
		if typ.NumIn() < 2 {
			continue
		}
		arg2Type := typ.In(1)
		if arg2Type.Kind() == reflect.Ptr {
			arg2Type = arg2Type.Elem()
		}

		schemas = append(schemas, WorkflowSchema{
			Name:   getFunctionName(wf),
			Schema: jsonschema.ReflectFromType(arg2Type),
		})
	}

	return schemas
}

func getWorkflowSchemas(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, workflowSchemas())
}
