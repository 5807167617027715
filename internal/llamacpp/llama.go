//go:build llama

package llamacpp

/*
#cgo CFLAGS: -I${SRCDIR}/../../third_party/llama.cpp/include -I${SRCDIR}/../../third_party/llama.cpp/ggml/include -I${SRCDIR}/../../third_party/llama.cpp/tools/mtmd -O2
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lmtmd -lllama -lggml -lggml-base -lstdc++ -lm
#include <stdlib.h>
#include "shim.h"
*/
import "C"

import (
	"strings"
	"syscall"
	"unsafe"

	"github.com/pkg/errors"

	"llmhost/internal/engine"
	"llmhost/internal/fault"
)

// Built reports whether this binary links llama.cpp.
const Built = true

// Runtime is the cgo implementation of engine.Runtime. It also implements
// fault.Installer.
type Runtime struct{}

// New returns the llama.cpp runtime and routes its log output to
// opts.Logger.
func New(opts Options) (engine.Runtime, error) {
	setLogger(opts.Logger)
	C.lh_log_install()
	return &Runtime{}, nil
}

func (r *Runtime) InstallFaultHandlers() { C.lh_install_handlers() }

func (r *Runtime) LoadBackend(name string) (string, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	reg := C.ggml_backend_load(cname)
	if reg == nil {
		return "", errors.Errorf("ggml_backend_load(%s) failed", name)
	}
	return C.GoString(C.ggml_backend_reg_name(reg)), nil
}

func (r *Runtime) InitBackend() { C.llama_backend_init() }

func (r *Runtime) Devices() []engine.Device {
	n := int(C.ggml_backend_dev_count())
	out := make([]engine.Device, 0, n)
	for i := 0; i < n; i++ {
		dev := C.ggml_backend_dev_get(C.size_t(i))
		out = append(out, engine.Device{
			Name:        C.GoString(C.ggml_backend_dev_name(dev)),
			Description: C.GoString(C.ggml_backend_dev_description(dev)),
			Kind:        deviceKind(C.ggml_backend_dev_type(dev)),
		})
	}
	return out
}

func deviceKind(t C.enum_ggml_backend_dev_type) engine.DeviceKind {
	switch t {
	case C.GGML_BACKEND_DEVICE_TYPE_GPU:
		return engine.DeviceGPU
	case C.GGML_BACKEND_DEVICE_TYPE_IGPU:
		return engine.DeviceIGPU
	case C.GGML_BACKEND_DEVICE_TYPE_ACCEL:
		return engine.DeviceAccel
	default:
		return engine.DeviceCPU
	}
}

func (r *Runtime) SystemInfo() string { return C.GoString(C.llama_print_system_info()) }

func (r *Runtime) LoadModel(p engine.ModelParams) (engine.Model, error) {
	cpath := C.CString(p.Path)
	defer C.free(unsafe.Pointer(cpath))
	mp := C.llama_model_default_params()
	mp.n_gpu_layers = C.int32_t(p.GPULayers)
	m := C.llama_model_load_from_file(cpath, mp)
	if m == nil {
		return nil, errors.Errorf("llama_model_load_from_file(%s) returned null", p.Path)
	}
	return &model{ptr: m, vocab: C.llama_model_get_vocab(m)}, nil
}

func (r *Runtime) NewContext(m engine.Model, p engine.ContextParams) (engine.Context, error) {
	lm := m.(*model)
	c := C.lh_context_new(lm.ptr, C.uint32_t(p.Size), C.uint32_t(p.Batch), C.uint32_t(p.MicroBatch),
		C.int32_t(p.Threads), C.int32_t(p.BatchThreads), C.bool(p.FlashAttention))
	if c == nil {
		return nil, errors.New("llama_init_from_model returned null")
	}
	return &llctx{ptr: c}, nil
}

func (r *Runtime) InitMultimodal(m engine.Model, p engine.MultimodalParams) (engine.Multimodal, error) {
	lm := m.(*model)
	cpath := C.CString(p.Path)
	defer C.free(unsafe.Pointer(cpath))
	mm := C.lh_mtmd_new(cpath, lm.ptr, C.int(p.Threads), C.bool(p.UseGPU), C.bool(p.Warmup), C.int(p.ImageMaxTokens))
	if mm == nil {
		return nil, errors.Errorf("mtmd_init_from_file(%s) returned null", p.Path)
	}
	return &multimodal{ptr: mm}, nil
}

func check(sig C.int, op string) {
	if sig != 0 {
		fault.Raise(syscall.Signal(sig), op)
	}
}

type model struct {
	ptr   *C.struct_llama_model
	vocab *C.struct_llama_vocab
}

func (m *model) ChatTemplate() (string, bool) {
	t := C.llama_model_chat_template(m.ptr, nil)
	if t == nil {
		return "", false
	}
	return C.GoString(t), true
}

func (m *model) ApplyTemplate(tmpl string, msgs []engine.Message, addAssistant bool) (string, error) {
	ctmpl := C.CString(tmpl)
	defer C.free(unsafe.Pointer(ctmpl))

	n := len(msgs)
	var chat *C.struct_llama_chat_message
	if n > 0 {
		chat = (*C.struct_llama_chat_message)(C.malloc(C.size_t(n) * C.size_t(unsafe.Sizeof(C.struct_llama_chat_message{}))))
		defer C.free(unsafe.Pointer(chat))
		items := unsafe.Slice(chat, n)
		for i, msg := range msgs {
			items[i].role = C.CString(msg.Role)
			items[i].content = C.CString(msg.Content)
		}
		defer func() {
			for i := range items {
				C.free(unsafe.Pointer(items[i].role))
				C.free(unsafe.Pointer(items[i].content))
			}
		}()
	}

	size := 0
	for _, msg := range msgs {
		size += len(msg.Role) + len(msg.Content)
	}
	buf := make([]byte, 2*size+256)
	for {
		var ret C.int32_t
		check(C.lh_apply_template(ctmpl, chat, C.size_t(n), C.bool(addAssistant),
			(*C.char)(unsafe.Pointer(&buf[0])), C.int32_t(len(buf)), &ret), "llama_chat_apply_template")
		if ret < 0 {
			return "", errors.Errorf("llama_chat_apply_template returned %d", int(ret))
		}
		if int(ret) <= len(buf) {
			return string(buf[:ret]), nil
		}
		buf = make([]byte, int(ret))
	}
}

func (m *model) Tokenize(text string, addSpecial, parseSpecial bool) ([]engine.Token, error) {
	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))
	tokens := make([]engine.Token, len(text)+2)
	for {
		var ret C.int32_t
		check(C.lh_tokenize(m.vocab, ctext, C.int32_t(len(text)),
			(*C.llama_token)(unsafe.Pointer(&tokens[0])), C.int32_t(len(tokens)),
			C.bool(addSpecial), C.bool(parseSpecial), &ret), "llama_tokenize")
		if ret >= 0 {
			return tokens[:ret], nil
		}
		if need := int(-ret); need > len(tokens) {
			tokens = make([]engine.Token, need)
			continue
		}
		return nil, errors.Errorf("llama_tokenize returned %d", int(ret))
	}
}

func (m *model) IsEOG(t engine.Token) bool {
	return bool(C.llama_vocab_is_eog(m.vocab, C.llama_token(t)))
}

func (m *model) Piece(t engine.Token) string {
	buf := make([]byte, 128)
	for {
		var ret C.int32_t
		check(C.lh_piece(m.vocab, C.llama_token(t), (*C.char)(unsafe.Pointer(&buf[0])), C.int32_t(len(buf)), &ret), "llama_token_to_piece")
		if ret >= 0 {
			return string(buf[:ret])
		}
		buf = make([]byte, int(-ret))
	}
}

func (m *model) Meta(key string) (string, bool) {
	ckey := C.CString(key)
	defer C.free(unsafe.Pointer(ckey))
	buf := make([]byte, 256)
	n := C.llama_model_meta_val_str(m.ptr, ckey, (*C.char)(unsafe.Pointer(&buf[0])), C.size_t(len(buf)))
	if n < 0 {
		return "", false
	}
	return strings.TrimRight(string(buf[:min(int(n), len(buf)-1)]), "\x00"), true
}

func (m *model) Free() { C.llama_model_free(m.ptr) }

type llctx struct {
	ptr *C.struct_llama_context
}

func (c *llctx) Size() int { return int(C.llama_n_ctx(c.ptr)) }

func (c *llctx) Decode(b engine.Batch) error {
	n := len(b.Tokens)
	if n == 0 {
		return nil
	}
	pos := make([]int32, n)
	logits := make([]int8, n)
	for i := 0; i < n; i++ {
		pos[i] = int32(b.Positions[i])
		if b.Logits[i] {
			logits[i] = 1
		}
	}
	var ret C.int32_t
	check(C.lh_decode(c.ptr,
		(*C.llama_token)(unsafe.Pointer(&b.Tokens[0])),
		(*C.int32_t)(unsafe.Pointer(&pos[0])),
		(*C.int8_t)(unsafe.Pointer(&logits[0])),
		C.int32_t(n), &ret), "llama_decode")
	if ret != 0 {
		return errors.Errorf("llama_decode returned %d", int(ret))
	}
	return nil
}

func (c *llctx) NewSampler(s engine.SamplingConfig) engine.Sampler {
	p := C.lh_sampler_new(C.float(s.Temperature), C.float(s.TopP), C.int32_t(s.TopK),
		C.float(s.MinP), C.float(s.RepeatPenalty), C.uint32_t(s.Seed))
	return &sampler{ptr: p, ctx: c.ptr}
}

func (c *llctx) ClearMemory() { check(C.lh_memory_clear(c.ptr), "llama_memory_clear") }

func (c *llctx) Perf() engine.PerfData {
	d := C.llama_perf_context(c.ptr)
	return engine.PerfData{
		PromptEvalMs: float64(d.t_p_eval_ms),
		EvalMs:       float64(d.t_eval_ms),
		PromptTokens: int(d.n_p_eval),
		EvalTokens:   int(d.n_eval),
	}
}

func (c *llctx) Free() { C.llama_free(c.ptr) }

type sampler struct {
	ptr *C.struct_llama_sampler
	ctx *C.struct_llama_context
}

func (s *sampler) Sample() engine.Token {
	var tok C.llama_token
	check(C.lh_sample(s.ptr, s.ctx, &tok), "llama_sampler_sample")
	return engine.Token(tok)
}

func (s *sampler) Accept(t engine.Token) {
	check(C.lh_accept(s.ptr, C.llama_token(t)), "llama_sampler_accept")
}

func (s *sampler) Free() { C.llama_sampler_free(s.ptr) }

type multimodal struct {
	ptr *C.mtmd_context
}

func (m *multimodal) Free() { C.mtmd_free(m.ptr) }
