package gbmrender

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-gl/gl/v3.1/gles2"
	"github.com/matjam/drmcomp/internal/render"
)

const vertexShaderSrc = `
    attribute vec2 a_position;
    attribute vec2 a_texCoord;
    varying vec2 v_texCoord;

    void main() {
        gl_Position = vec4(a_position, 0.0, 1.0);
        v_texCoord = a_texCoord;
    }
` + "\x00"

const fragmentShaderSrc = `
    precision mediump float;
    varying vec2 v_texCoord;
    uniform sampler2D u_texture;
    uniform float u_alpha;

    void main() {
        vec4 texColor = texture2D(u_texture, v_texCoord);
        gl_FragColor = texColor * u_alpha;
    }
` + "\x00"

func compileShader(src string, shaderType uint32) (uint32, error) {
	shader := gles2.CreateShader(shaderType)
	csrc, free := gles2.Strs(src)
	gles2.ShaderSource(shader, 1, csrc, nil)
	free()
	gles2.CompileShader(shader)

	var status int32
	gles2.GetShaderiv(shader, gles2.COMPILE_STATUS, &status)
	if status == gles2.FALSE {
		var logLen int32
		gles2.GetShaderiv(shader, gles2.INFO_LOG_LENGTH, &logLen)
		msg := strings.Repeat("\x00", int(logLen+1))
		gles2.GetShaderInfoLog(shader, logLen, nil, gles2.Str(msg))
		gles2.DeleteShader(shader)
		return 0, fmt.Errorf("shader compile error: %s", strings.TrimRight(msg, "\x00"))
	}
	return shader, nil
}

func compileProgram(vsrc, fsrc string) (uint32, error) {
	vs, err := compileShader(vsrc, gles2.VERTEX_SHADER)
	if err != nil {
		return 0, err
	}
	fs, err := compileShader(fsrc, gles2.FRAGMENT_SHADER)
	if err != nil {
		gles2.DeleteShader(vs)
		return 0, err
	}

	prog := gles2.CreateProgram()
	gles2.AttachShader(prog, vs)
	gles2.AttachShader(prog, fs)
	gles2.LinkProgram(prog)
	gles2.DeleteShader(vs)
	gles2.DeleteShader(fs)

	var status int32
	gles2.GetProgramiv(prog, gles2.LINK_STATUS, &status)
	if status == gles2.FALSE {
		var logLen int32
		gles2.GetProgramiv(prog, gles2.INFO_LOG_LENGTH, &logLen)
		msg := strings.Repeat("\x00", int(logLen+1))
		gles2.GetProgramInfoLog(prog, logLen, nil, gles2.Str(msg))
		gles2.DeleteProgram(prog)
		return 0, fmt.Errorf("program link error: %s", strings.TrimRight(msg, "\x00"))
	}
	return prog, nil
}

// setupShaderProgram creates the textured quad program and its vertex buffer.
func (r *Renderer) setupShaderProgram() error {
	prog, err := compileProgram(vertexShaderSrc, fragmentShaderSrc)
	if err != nil {
		return err
	}
	r.program = prog

	pos := gles2.GetAttribLocation(prog, gles2.Str("a_position\x00"))
	tex := gles2.GetAttribLocation(prog, gles2.Str("a_texCoord\x00"))
	if pos < 0 || tex < 0 {
		return fmt.Errorf("quad program is missing its attributes")
	}
	r.attribPos = uint32(pos)
	r.attribTex = uint32(tex)
	r.uniformTex = gles2.GetUniformLocation(prog, gles2.Str("u_texture\x00"))
	r.uniformAlpha = gles2.GetUniformLocation(prog, gles2.Str("u_alpha\x00"))

	gles2.GenBuffers(1, &r.vbo)
	return nil
}

// frame is the scoped drawing target handed out by BeginFrame.
type frame struct {
	r        *Renderer
	finished bool
}

func (f *frame) Clear(c render.Color) {
	if f.finished {
		return
	}
	gles2.ClearColor(c.R, c.G, c.B, c.A)
	gles2.Clear(gles2.COLOR_BUFFER_BIT)
}

func (f *frame) RenderTexture(tex render.Texture, q render.Quad) error {
	if f.finished {
		return render.ErrFrameFinished
	}
	t, ok := tex.(*Texture)
	if !ok {
		return fmt.Errorf("texture %T was not created by this renderer", tex)
	}
	if t.id == 0 {
		return errors.New("texture used after release")
	}

	r := f.r
	if q.Blend {
		// client buffers carry premultiplied alpha
		gles2.Enable(gles2.BLEND)
		gles2.BlendFunc(gles2.ONE, gles2.ONE_MINUS_SRC_ALPHA)
	} else {
		gles2.Disable(gles2.BLEND)
	}

	gles2.ActiveTexture(gles2.TEXTURE0)
	gles2.BindTexture(gles2.TEXTURE_2D, t.id)
	gles2.Uniform1i(r.uniformTex, 0)
	gles2.Uniform1f(r.uniformAlpha, 1.0)

	vertices := render.QuadVertices(q, r.size)
	gles2.BindBuffer(gles2.ARRAY_BUFFER, r.vbo)
	gles2.BufferData(gles2.ARRAY_BUFFER, len(vertices)*4, gles2.Ptr(&vertices[0]), gles2.STREAM_DRAW)

	gles2.EnableVertexAttribArray(r.attribPos)
	gles2.EnableVertexAttribArray(r.attribTex)
	gles2.VertexAttribPointerWithOffset(r.attribPos, 2, gles2.FLOAT, false, 4*4, 0)
	gles2.VertexAttribPointerWithOffset(r.attribTex, 2, gles2.FLOAT, false, 4*4, 2*4)

	gles2.DrawArrays(gles2.TRIANGLES, 0, 6)

	gles2.DisableVertexAttribArray(r.attribPos)
	gles2.DisableVertexAttribArray(r.attribTex)
	gles2.BindBuffer(gles2.ARRAY_BUFFER, 0)
	return nil
}

// Finish submits the frame. The frame is over even when presenting fails.
func (f *frame) Finish() error {
	if f.finished {
		return render.ErrFrameFinished
	}
	f.finished = true
	f.r.inFlight = false
	return f.r.present()
}
