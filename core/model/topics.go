package model

// Bus topic names shared by the control loop components.
const (
	TopicPose         = "/pose"
	TopicDetections   = "/sensor/detections"
	TopicLidar        = "/sensor/lidar"
	TopicTick         = "/cmd_tick"
	TopicAuto         = "/cmd_auto"
	TopicWheelLeft    = "/wheel/cmd_vel/left"
	TopicWheelRight   = "/wheel/cmd_vel/right"
	TopicArm          = "/cmd_arm"
	TopicGripper      = "/cmd_gripper"
	TopicMap          = "/cmd_map"
	TopicDetectObject = "/task/detect_object"
	TopicTeleopKey    = "/teleop/key"
)
