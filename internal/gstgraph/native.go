package gstgraph

/*
#cgo pkg-config: gstreamer-1.0 gstreamer-gl-1.0 gstreamer-gl-x11-1.0 x11 gl
#include <GL/glx.h>
#include <gst/gst.h>
#include <gst/gl/gl.h>
#include <gst/gl/x11/gstgldisplay_x11.h>

enum {
	GLP_OK = 0,
	GLP_NOT_CURRENT = 1,
	GLP_WRAP_FAILED = 2,
	GLP_FILL_FAILED = 3,
};

static GstContext *glp_display_context(void *xdisplay, GstGLDisplay **out) {
	GstGLDisplay *display = GST_GL_DISPLAY(gst_gl_display_x11_new_with_display((Display *) xdisplay));
	if (display == NULL) {
		return NULL;
	}
	GstContext *ctx = gst_context_new(GST_GL_DISPLAY_CONTEXT_TYPE, TRUE);
	gst_context_set_gl_display(ctx, display);
	*out = display;
	return ctx;
}

// glp_app_context wraps the GLX context current on the calling thread and
// fills its info (API, version, extensions) the way GStreamer's own app
// context sinks do. The host binding is current again on return.
static int glp_app_context(GstGLDisplay *display, guintptr handle, GstGLContext **out, GstContext **ctx, gchar **errmsg) {
	Display *xdpy = glXGetCurrentDisplay();
	GLXDrawable drawable = glXGetCurrentDrawable();
	GLXContext current = glXGetCurrentContext();
	if (current == NULL || (guintptr) current != handle) {
		return GLP_NOT_CURRENT;
	}

	GstGLContext *gl = gst_gl_context_new_wrapped(display, handle, GST_GL_PLATFORM_GLX, GST_GL_API_OPENGL);
	if (gl == NULL) {
		return GLP_WRAP_FAILED;
	}

	GError *err = NULL;
	gst_gl_context_activate(gl, TRUE);
	gboolean filled = gst_gl_context_fill_info(gl, &err);
	gst_gl_context_activate(gl, FALSE);
	glXMakeCurrent(xdpy, drawable, current);

	if (!filled) {
		*errmsg = g_strdup(err != NULL ? err->message : "unknown error");
		g_clear_error(&err);
		gst_object_unref(gl);
		return GLP_FILL_FAILED;
	}

	*ctx = gst_context_new("gst.gl.app_context", TRUE);
	gst_structure_set(gst_context_writable_structure(*ctx), "context", GST_TYPE_GL_CONTEXT, gl, NULL);
	*out = gl;
	return GLP_OK;
}

static void glp_free(gchar *s) {
	g_free(s);
}

static const char *glp_message_context_type(GstMessage *msg) {
	const gchar *typ = NULL;
	if (!gst_message_parse_context_type(msg, &typ)) {
		return NULL;
	}
	return typ;
}

static gboolean glp_message_set_context(GstMessage *msg, GstContext *ctx) {
	GstObject *src = GST_MESSAGE_SRC(msg);
	if (src == NULL || !GST_IS_ELEMENT(src)) {
		return FALSE;
	}
	gst_element_set_context(GST_ELEMENT(src), ctx);
	return TRUE;
}

// glp_sample_info keeps a reference on sample and reports the texture
// backing its first memory block, if that block is GL memory.
static GstSample *glp_sample_info(GstSample *sample, guint *tex, gint *width, gint *height, gboolean *is_gl) {
	*tex = 0;
	*width = 0;
	*height = 0;
	*is_gl = FALSE;

	GstCaps *caps = gst_sample_get_caps(sample);
	if (caps != NULL && gst_caps_get_size(caps) > 0) {
		GstStructure *s = gst_caps_get_structure(caps, 0);
		gst_structure_get_int(s, "width", width);
		gst_structure_get_int(s, "height", height);
	}

	GstBuffer *buf = gst_sample_get_buffer(sample);
	if (buf != NULL && gst_buffer_n_memory(buf) > 0) {
		GstMemory *mem = gst_buffer_peek_memory(buf, 0);
		if (gst_is_gl_memory(mem)) {
			*is_gl = TRUE;
			*tex = gst_gl_memory_get_texture_id((GstGLMemory *) mem);
		}
	}
	return gst_sample_ref(sample);
}

static void glp_sample_unref(GstSample *sample) {
	gst_sample_unref(sample);
}

static void glp_context_unref(GstContext *ctx) {
	gst_context_unref(ctx);
}

static void glp_object_unref(gpointer obj) {
	gst_object_unref(obj);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"unsafe"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/glcontext"
	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/relay"
)

var (
	// ErrNoNativeHandle: the display or context handle passed in is nil.
	ErrNoNativeHandle = errors.New("gstgraph: native handle is nil")
	// ErrContextNotCurrent: the GLX context is not current on the calling
	// thread.
	ErrContextNotCurrent = errors.New("gstgraph: GL context is not current on the calling thread")
)

// nativeContext is the Native() value of descriptors built here.
type nativeContext struct {
	ctx *C.GstContext
}

// X11Context owns the GstContexts that wrap the host's X11 display and GLX
// context. Close it after the player is torn down.
type X11Context struct {
	registry  *glcontext.Registry
	display   *nativeContext
	app       *nativeContext
	glDisplay *C.GstGLDisplay
	glContext *C.GstGLContext
	closeOnce sync.Once
}

// NewX11Context wraps an X11 Display* and a GLX context. Both must already
// exist and the GLX context must be current on the calling thread; it is
// current again when NewX11Context returns. The GLX context stays owned by
// the host.
func NewX11Context(xDisplay unsafe.Pointer, glxContext uintptr) (*X11Context, error) {
	if xDisplay == nil || glxContext == 0 {
		return nil, ErrNoNativeHandle
	}
	gst.Init(nil)

	var glDisplay *C.GstGLDisplay
	displayCtx := C.glp_display_context(xDisplay, &glDisplay)
	if displayCtx == nil {
		return nil, fmt.Errorf("gstgraph: failed to wrap X11 display")
	}

	var (
		glContext *C.GstGLContext
		appCtx    *C.GstContext
		errmsg    *C.gchar
	)
	if rc := C.glp_app_context(glDisplay, C.guintptr(glxContext), &glContext, &appCtx, &errmsg); rc != C.GLP_OK {
		C.glp_context_unref(displayCtx)
		C.glp_object_unref(C.gpointer(unsafe.Pointer(glDisplay)))
		return nil, appContextError(rc, errmsg)
	}

	x := &X11Context{
		display:   &nativeContext{ctx: displayCtx},
		app:       &nativeContext{ctx: appCtx},
		glDisplay: glDisplay,
		glContext: glContext,
	}

	displayDesc, err := glcontext.NewDescriptor(glcontext.DisplayContextType, x.display)
	if err != nil {
		x.Close()
		return nil, err
	}
	appDesc, err := glcontext.NewDescriptor(glcontext.AppContextType, x.app)
	if err != nil {
		x.Close()
		return nil, err
	}
	if x.registry, err = glcontext.NewRegistry(displayDesc, appDesc); err != nil {
		x.Close()
		return nil, err
	}

	slog.Info("gstgraph: host GL context wrapped",
		"display_type", string(glcontext.DisplayContextType),
		"app_type", string(glcontext.AppContextType),
	)
	return x, nil
}

func appContextError(rc C.int, errmsg *C.gchar) error {
	switch rc {
	case C.GLP_NOT_CURRENT:
		return ErrContextNotCurrent
	case C.GLP_FILL_FAILED:
		msg := C.GoString((*C.char)(errmsg))
		C.glp_free(errmsg)
		return fmt.Errorf("gstgraph: failed to query wrapped GL context: %s", msg)
	default:
		return fmt.Errorf("gstgraph: failed to wrap GLX context")
	}
}

// Registry returns the descriptors to hand to the player.
func (x *X11Context) Registry() *glcontext.Registry {
	return x.registry
}

// Close drops the wrapper references. Idempotent.
func (x *X11Context) Close() {
	x.closeOnce.Do(func() {
		if x.app != nil {
			C.glp_context_unref(x.app.ctx)
		}
		if x.display != nil {
			C.glp_context_unref(x.display.ctx)
		}
		if x.glContext != nil {
			C.glp_object_unref(C.gpointer(unsafe.Pointer(x.glContext)))
		}
		if x.glDisplay != nil {
			C.glp_object_unref(C.gpointer(unsafe.Pointer(x.glDisplay)))
		}
		slog.Debug("gstgraph: host GL context wrappers released")
	})
}

// contextRequest adapts a need-context bus message. Valid only inside the
// sync handler that received it.
type contextRequest struct {
	msg *C.GstMessage
	src string
}

func newContextRequest(msg *gst.Message) *contextRequest {
	return &contextRequest{
		msg: (*C.GstMessage)(unsafe.Pointer(msg.Instance())),
		src: msg.Source(),
	}
}

func (r *contextRequest) ContextType() glcontext.ContextType {
	typ := C.glp_message_context_type(r.msg)
	if typ == nil {
		return ""
	}
	return glcontext.ContextType(C.GoString(typ))
}

func (r *contextRequest) Requester() string {
	return r.src
}

func (r *contextRequest) Attach(d glcontext.Descriptor) error {
	native, ok := d.Native().(*nativeContext)
	if !ok || native == nil || native.ctx == nil {
		return fmt.Errorf("gstgraph: descriptor %q does not hold a GstContext", d.Type())
	}
	if C.glp_message_set_context(r.msg, native.ctx) == C.FALSE {
		return fmt.Errorf("gstgraph: %s is not an element", r.src)
	}
	return nil
}

// frameFromSample keeps a reference on sample until the returned release
// runs.
func frameFromSample(sample *gst.Sample) (relay.FrameInfo, func()) {
	var (
		tex           C.guint
		width, height C.gint
		isGL          C.gboolean
	)
	ref := C.glp_sample_info((*C.GstSample)(unsafe.Pointer(sample.Instance())), &tex, &width, &height, &isGL)

	info := relay.FrameInfo{
		Texture: uint32(tex),
		Width:   int(width),
		Height:  int(height),
		Format:  "RGBA",
		Memory:  relay.MemorySystem,
	}
	if isGL != C.FALSE {
		info.Memory = relay.MemoryGPU
	}
	return info, func() { C.glp_sample_unref(ref) }
}
