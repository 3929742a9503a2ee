/*
 * Copyright 2024 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package handlers provides the default not-found, not-allowed, error and
// fatal error handlers. Each renders JSON, XML, HTML or plain text depending
// on the Accept header of the request.
package handlers

import (
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"net/http"
	"reflect"
	"strings"

	"github.com/rulego/hive/api/types"
	"github.com/rulego/hive/utils/json"
)

const (
	contentJSON  = "application/json"
	contentXML   = "application/xml"
	contentXML2  = "text/xml"
	contentHTML  = "text/html"
	contentPlain = "text/plain"
)

var known = []string{contentJSON, contentXML, contentXML2, contentHTML, contentPlain}

// ContentType picks the first known type of the Accept header, HTML when
// none is known.
func ContentType(req *types.Request) string {
	for _, part := range strings.Split(req.Header.Get("Accept"), ",") {
		mediaType := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		for _, k := range known {
			if mediaType == k {
				return k
			}
		}
		// vendor types such as application/vnd.api+json
		if strings.HasSuffix(mediaType, "+json") {
			return contentJSON
		}
		if strings.HasSuffix(mediaType, "+xml") {
			return contentXML
		}
	}
	return contentHTML
}

// message is the renderable form of a failure.
type message struct {
	XMLName xml.Name `json:"-" xml:"error"`
	Title   string   `json:"message" xml:"message"`
	Details []detail `json:"exception,omitempty" xml:"exception,omitempty"`
}

type detail struct {
	Type    string `json:"type" xml:"type"`
	Message string `json:"message" xml:"message"`
	Trace   string `json:"trace,omitempty" xml:"trace,omitempty"`
}

// details walks the error chain.
func details(err error) []detail {
	var list []detail
	for err != nil {
		d := detail{Type: reflect.TypeOf(err).String(), Message: err.Error()}
		var fault *types.RuntimeFault
		if errors.As(err, &fault) && fault == err {
			d.Trace = fault.Stack
		}
		list = append(list, d)
		err = errors.Unwrap(err)
	}
	return list
}

func render(contentType string, m message) []byte {
	switch contentType {
	case contentJSON:
		b, _ := json.MarshalIndent(m)
		return b
	case contentXML, contentXML2:
		b, _ := xml.MarshalIndent(m, "", "  ")
		return append([]byte(xml.Header), b...)
	case contentPlain:
		var b strings.Builder
		b.WriteString(m.Title)
		for _, d := range m.Details {
			fmt.Fprintf(&b, "\n\nType: %s\nMessage: %s", d.Type, d.Message)
			if d.Trace != "" {
				fmt.Fprintf(&b, "\nTrace:\n%s", d.Trace)
			}
		}
		return []byte(b.String())
	default:
		var b strings.Builder
		fmt.Fprintf(&b, "<html><head><meta http-equiv=\"Content-Type\" content=\"text/html; charset=utf-8\"><title>%s</title></head><body><h1>%s</h1>",
			html.EscapeString(m.Title), html.EscapeString(m.Title))
		for _, d := range m.Details {
			fmt.Fprintf(&b, "<h2>Details</h2><div><strong>Type:</strong> %s</div><div><strong>Message:</strong> %s</div>",
				html.EscapeString(d.Type), html.EscapeString(d.Message))
			if d.Trace != "" {
				fmt.Fprintf(&b, "<h2>Trace</h2><pre>%s</pre>", html.EscapeString(d.Trace))
			}
		}
		b.WriteString("</body></html>")
		return []byte(b.String())
	}
}

func write(req *types.Request, res *types.Response, status int, m message) *types.Response {
	contentType := ContentType(req)
	res.WithStatus(status).WithHeader(types.HeaderContentType, contentType+"; charset=utf-8")
	res.SetBody(render(contentType, m))
	return res
}

// NotFound renders a 404.
func NotFound(req *types.Request, res *types.Response, err error) *types.Response {
	return write(req, res, http.StatusNotFound, message{Title: "Page Not Found"})
}

// NotAllowed renders a 405 listing allowed in the Allow header. An OPTIONS
// request gets a 200 instead.
func NotAllowed(req *types.Request, res *types.Response, allowed []string) *types.Response {
	allow := strings.Join(allowed, ", ")
	res.WithHeader(types.HeaderAllow, allow)
	if req.Method() == http.MethodOptions {
		return res.WithStatus(http.StatusOK).
			WithHeader(types.HeaderContentType, contentPlain+"; charset=utf-8").
			SetBody([]byte("Allowed methods: " + allow))
	}
	return write(req, res, http.StatusMethodNotAllowed, message{Title: "Method not allowed. Must be one of: " + allow})
}

// Error returns the application error handler. Details are rendered when
// displayErrorDetails is set and written to logger otherwise.
func Error(displayErrorDetails bool, logger types.Logger) types.ErrorHandler {
	return errorHandler("Application Error", displayErrorDetails, logger)
}

// Fatal returns the handler of runtime faults.
func Fatal(displayErrorDetails bool, logger types.Logger) types.ErrorHandler {
	return errorHandler("Application Fault", displayErrorDetails, logger)
}

func errorHandler(title string, displayErrorDetails bool, logger types.Logger) types.ErrorHandler {
	logger = types.NewLogger(logger)
	return func(req *types.Request, res *types.Response, err error) *types.Response {
		m := message{Title: title}
		if displayErrorDetails {
			m.Details = details(err)
		} else {
			logError(logger, title, req, err)
		}
		return write(req, res, http.StatusInternalServerError, m)
	}
}

func logError(logger types.Logger, title string, req *types.Request, err error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s %s", title, req.Method(), req.URI())
	if id, ok := req.Attribute(types.AttrRequestId).(string); ok {
		fmt.Fprintf(&b, " [%s]", id)
	}
	for i, d := range details(err) {
		if i > 0 {
			b.WriteString("\nPrevious error:")
		}
		fmt.Fprintf(&b, "\nType: %s\nMessage: %s", d.Type, d.Message)
		if d.Trace != "" {
			fmt.Fprintf(&b, "\nTrace:\n%s", d.Trace)
		}
	}
	b.WriteString("\nView in rendered output by enabling the \"displayErrorDetails\" setting.")
	logger.Printf("%s", b.String())
}
