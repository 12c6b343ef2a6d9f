// Package catcher implements a native Atari-like pixel environment.
//
// A ball falls from the top of the screen under gravity while a paddle
// slides along the bottom. Catching the ball is rewarded, letting it
// fall past the paddle loses a life. Observations are the raw rendered
// frames, so agents for this environment see exactly what a human
// player would.
package catcher

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/ByteArena/box2d"
	"github.com/fogleman/gg"
	"gonum.org/v1/gonum/spatial/r1"

	"github.com/tatsuyaokubo/async-rl/environment"
)

const (
	// ViewportW and ViewportH are the rendered frame dimensions in
	// pixels. They match the frame geometry of the Atari 2600 games
	// the preprocessing pipeline was designed around.
	ViewportW = 160
	ViewportH = 210

	// Scale converts world coordinates to pixel coordinates
	Scale = 20.0

	// World geometry, in world units
	worldW       = ViewportW / Scale
	worldH       = ViewportH / Scale
	paddleW      = 1.4
	paddleH      = 0.25
	paddleY      = 0.5
	ballRadius   = 0.3
	ballSpawnY   = worldH - 1.0
	paddleSpeed  = 6.0
	gravityY     = -10.0
	timeStep     = 1.0 / 50.0
	velocityIter = 6
	positionIter = 2
)

// Discrete actions
const (
	NoOp int = iota
	MoveLeft
	MoveRight
	numActions
)

// Catcher implements the catch-the-ball game. It satisfies both the
// environment.Environment and environment.Renderer interfaces.
type Catcher struct {
	world  box2d.B2World
	paddle *box2d.B2Body
	ball   *box2d.B2Body

	starter environment.Starter
	lives   int
	cutoff  int

	livesLeft int
	steps     int
	closed    bool

	// lastFrame may be read by a monitor goroutine while the owning
	// worker steps the world, so it has its own lock
	frameMu   sync.Mutex
	lastFrame image.Image

	background  color.RGBA
	ballShade   color.RGBA
	paddleShade color.RGBA
}

// New returns a new Catcher. The lives parameter sets how many balls
// may be dropped before the episode terminates, and cutoff bounds the
// episode length in steps (<= 0 for no cutoff). The seed determines
// the sequence of ball spawn positions and velocities.
func New(lives, cutoff int, seed uint64) (*Catcher, error) {
	if lives <= 0 {
		return nil, fmt.Errorf("new: lives must be positive, got %v", lives)
	}

	// Spawn position along the top edge and initial horizontal
	// velocity of each dropped ball
	bounds := []r1.Interval{
		{Min: ballRadius * 2, Max: worldW - ballRadius*2},
		{Min: -2.0, Max: 2.0},
	}

	c := &Catcher{
		starter:     environment.NewUniformStarter(bounds, seed),
		lives:       lives,
		cutoff:      cutoff,
		background:  color.RGBA{R: 15, G: 15, B: 15, A: 255},
		ballShade:   color.RGBA{R: 236, G: 236, B: 236, A: 255},
		paddleShade: color.RGBA{R: 200, G: 72, B: 72, A: 255},
	}
	c.buildWorld()

	return c, nil
}

// buildWorld constructs a fresh box2d world containing the side walls,
// the paddle, and a newly spawned ball
func (c *Catcher) buildWorld() {
	// Bodies from the previous world are discarded with it
	c.ball = nil
	c.world = box2d.MakeB2World(box2d.B2Vec2{X: 0.0, Y: gravityY})

	// Side walls so the ball bounces back into play
	for _, x := range []float64{0.0, worldW} {
		wallDef := box2d.NewB2BodyDef()
		wallDef.Type = 0 // Static body
		wall := c.world.CreateBody(wallDef)

		wallShape := box2d.NewB2EdgeShape()
		wallShape.Set(box2d.MakeB2Vec2(x, 0.0), box2d.MakeB2Vec2(x, worldH))

		wallFix := box2d.MakeB2FixtureDef()
		wallFix.Shape = wallShape
		wallFix.Restitution = 0.7
		wall.CreateFixtureFromDef(&wallFix)
	}

	// Paddle
	paddleDef := box2d.NewB2BodyDef()
	paddleDef.Type = 1 // Kinematic body
	paddleDef.Position = box2d.MakeB2Vec2(worldW/2, paddleY)
	c.paddle = c.world.CreateBody(paddleDef)

	paddleShape := box2d.NewB2PolygonShape()
	paddleShape.SetAsBox(paddleW/2, paddleH/2)

	paddleFix := box2d.MakeB2FixtureDef()
	paddleFix.Shape = paddleShape
	c.paddle.CreateFixtureFromDef(&paddleFix)

	c.spawnBall()
}

// spawnBall drops a new ball from the top of the screen
func (c *Catcher) spawnBall() {
	if c.ball != nil {
		c.world.DestroyBody(c.ball)
	}

	start := c.starter.Start()

	ballDef := box2d.NewB2BodyDef()
	ballDef.Type = 2 // Dynamic body
	ballDef.Position = box2d.MakeB2Vec2(start[0], ballSpawnY)
	c.ball = c.world.CreateBody(ballDef)

	ballShape := box2d.NewB2CircleShape()
	ballShape.SetRadius(ballRadius)

	ballFix := box2d.MakeB2FixtureDef()
	ballFix.Shape = ballShape
	ballFix.Density = 1.0
	ballFix.Restitution = 0.7
	c.ball.CreateFixtureFromDef(&ballFix)

	c.ball.SetLinearVelocity(box2d.MakeB2Vec2(start[1], 0.0))
}

// Reset resets the environment between episodes
func (c *Catcher) Reset() (image.Image, error) {
	if c.closed {
		return nil, fmt.Errorf("reset: environment closed")
	}

	c.buildWorld()
	c.livesLeft = c.lives
	c.steps = 0

	return c.render(), nil
}

// Step takes a single environmental step
func (c *Catcher) Step(action int) (image.Image, float64, bool, error) {
	if c.closed {
		return nil, 0, true, fmt.Errorf("step: environment closed")
	}
	if action < 0 || action >= numActions {
		return nil, 0, true, fmt.Errorf("step: illegal action %v, "+
			"action space is [0, %v)", action, numActions)
	}
	if c.livesLeft == 0 {
		return nil, 0, true, fmt.Errorf("step: episode finished, " +
			"call Reset")
	}

	switch action {
	case MoveLeft:
		c.paddle.SetLinearVelocity(box2d.MakeB2Vec2(-paddleSpeed, 0.0))
	case MoveRight:
		c.paddle.SetLinearVelocity(box2d.MakeB2Vec2(paddleSpeed, 0.0))
	default:
		c.paddle.SetLinearVelocity(box2d.MakeB2Vec2(0.0, 0.0))
	}

	c.world.Step(timeStep, velocityIter, positionIter)
	c.clampPaddle()
	c.steps++

	// Catch or miss is decided when the ball reaches paddle height
	reward := 0.0
	ballPos := c.ball.GetPosition()
	if ballPos.Y-ballRadius <= paddleY+paddleH/2 {
		paddleX := c.paddle.GetPosition().X
		if ballPos.X >= paddleX-paddleW/2-ballRadius &&
			ballPos.X <= paddleX+paddleW/2+ballRadius {
			reward = 1.0
		} else {
			reward = -1.0
			c.livesLeft--
		}
		if c.livesLeft > 0 {
			c.spawnBall()
		}
	}

	terminal := c.livesLeft == 0 || (c.cutoff > 0 && c.steps >= c.cutoff)

	return c.render(), reward, terminal, nil
}

// clampPaddle keeps the paddle fully inside the viewport
func (c *Catcher) clampPaddle() {
	pos := c.paddle.GetPosition()
	x := pos.X
	if x < paddleW/2 {
		x = paddleW / 2
	} else if x > worldW-paddleW/2 {
		x = worldW - paddleW/2
	}
	if x != pos.X {
		c.paddle.SetTransform(box2d.MakeB2Vec2(x, pos.Y), 0.0)
		c.paddle.SetLinearVelocity(box2d.MakeB2Vec2(0.0, 0.0))
	}
}

// NumActions returns the size of the discrete action space
func (c *Catcher) NumActions() int {
	return numActions
}

// Lives returns the number of lives remaining in the current episode
func (c *Catcher) Lives() int {
	return c.livesLeft
}

// Render returns the most recently rendered frame, or nil if no frame
// has been rendered yet. Safe to call concurrently with Step.
func (c *Catcher) Render() image.Image {
	c.frameMu.Lock()
	defer c.frameMu.Unlock()
	return c.lastFrame
}

// Close performs resource cleanup
func (c *Catcher) Close() error {
	c.closed = true
	return nil
}

// render rasterises the current world state into a frame
func (c *Catcher) render() image.Image {
	dc := gg.NewContext(ViewportW, ViewportH)
	dc.SetColor(c.background)
	dc.Clear()

	// Paddle
	paddlePos := c.paddle.GetPosition()
	px, py := worldToPixel(paddlePos.X, paddlePos.Y)
	dc.SetColor(c.paddleShade)
	dc.DrawRectangle(px-paddleW/2*Scale, py-paddleH/2*Scale,
		paddleW*Scale, paddleH*Scale)
	dc.Fill()

	// Ball
	ballPos := c.ball.GetPosition()
	bx, by := worldToPixel(ballPos.X, ballPos.Y)
	dc.SetColor(c.ballShade)
	dc.DrawCircle(bx, by, ballRadius*Scale)
	dc.Fill()

	img := dc.Image()
	c.frameMu.Lock()
	c.lastFrame = img
	c.frameMu.Unlock()
	return img
}

// worldToPixel converts world coordinates to pixel coordinates. The
// world origin is the bottom-left corner, while image origins are
// top-left.
func worldToPixel(x, y float64) (float64, float64) {
	return x * Scale, float64(ViewportH) - y*Scale
}
